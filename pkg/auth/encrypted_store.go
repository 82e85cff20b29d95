package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultVersion     = 1
	saltSize         = 32
	keySize          = 32
	kdfIterations    = 100000
	passphraseFile   = ".passphrase"
	passphraseEnvVar = "INSTABRIDGE_PASSPHRASE"
)

// envelope is the on-disk form of the vault. Byte fields are base64 in JSON.
type envelope struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Sealed   []byte    `json:"sealed"`
	Modified time.Time `json:"modified"`
}

// EncryptedFileStore keeps accounts in an AES-GCM sealed JSON file. The key
// is derived with PBKDF2-SHA256 from INSTABRIDGE_PASSPHRASE, or from a
// random passphrase generated once and kept beside the vault.
type EncryptedFileStore struct {
	path       string
	passphrase []byte

	mu      sync.Mutex
	keySalt []byte
	key     []byte
}

// NewEncryptedFileStore opens the vault at path; the file appears on first Store
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	pass, err := loadPassphrase(filepath.Join(filepath.Dir(path), passphraseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: pass}, nil
}

// Store adds or replaces the account
func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.open()
	if err != nil {
		return err
	}
	accounts[account.Username] = *account
	return e.seal(accounts, salt)
}

// Retrieve returns the account for username
func (e *EncryptedFileStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, _, err := e.open()
	if err != nil {
		return nil, err
	}
	acc, ok := accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &acc, nil
}

// List returns every account in the vault
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, _, err := e.open()
	if err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(accounts))
	for _, acc := range accounts {
		acc := acc
		out = append(out, &acc)
	}
	return out, nil
}

// Delete removes the account; removing the last one deletes the file
func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.open()
	if err != nil {
		return err
	}
	if _, ok := accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(accounts, username)
	if len(accounts) == 0 {
		return os.Remove(e.path)
	}
	return e.seal(accounts, salt)
}

// Exists checks if credentials exist
func (e *EncryptedFileStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}

// open decrypts the vault. A missing file is an empty vault with no salt yet.
func (e *EncryptedFileStore) open() (map[string]Account, []byte, error) {
	accounts := make(map[string]Account)
	raw, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return accounts, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read vault: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse vault: %w", err)
	}
	plain, err := openSealed(e.derive(env.Salt), env.Sealed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt vault: %w", err)
	}
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, env.Salt, nil
}

// seal encrypts accounts and replaces the vault atomically
func (e *EncryptedFileStore) seal(accounts map[string]Account, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	plain, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	sealed, err := sealPlain(e.derive(salt), plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt vault: %w", err)
	}

	data, err := json.MarshalIndent(envelope{
		Version:  vaultVersion,
		Salt:     salt,
		Sealed:   sealed,
		Modified: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	return os.Rename(tmp, e.path)
}

// derive returns the key for salt, reusing the last derivation
func (e *EncryptedFileStore) derive(salt []byte) []byte {
	if e.key != nil && bytes.Equal(e.keySalt, salt) {
		return e.key
	}
	key := pbkdf2.Key(e.passphrase, salt, kdfIterations, keySize, sha256.New)
	e.keySalt = append([]byte(nil), salt...)
	e.key = key
	return key
}

func loadPassphrase(file string) ([]byte, error) {
	if v := os.Getenv(passphraseEnvVar); v != "" {
		return []byte(v), nil
	}
	if b, err := os.ReadFile(file); err == nil && len(b) > 0 {
		return b, nil
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := []byte(base64.URLEncoding.EncodeToString(random))
	if err := os.WriteFile(file, pass, 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// sealPlain returns nonce || ciphertext
func sealPlain(key, plain []byte) ([]byte, error) {
	gcm, err := gcmFor(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func openSealed(key, sealed []byte) ([]byte, error) {
	gcm, err := gcmFor(key)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, sealed[:n], sealed[n:], nil)
}
