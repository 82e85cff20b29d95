package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name entries are filed under in the OS keychain
	KeyringService = "InstaBridge"

	accountKeyPrefix = "instagram_"
	// indexKey lists the stored usernames; keychains cannot be enumerated
	indexKey = "accounts"
	probeKey = "probe"
)

// KeyringStore keeps each account as a JSON secret in the OS keychain and
// maintains an index entry so List can find them again.
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a keyring store after checking the keychain answers
func NewKeyringStore() (*KeyringStore, error) {
	if err := keyring.Set(KeyringService, probeKey, "ok"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(KeyringService, probeKey)
	return &KeyringStore{}, nil
}

func accountKey(username string) string {
	return accountKeyPrefix + username
}

// Store saves the account and records its username in the index
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Set(KeyringService, accountKey(account.Username), string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	names := k.index()
	names[account.Username] = struct{}{}
	return k.writeIndex(names)
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(KeyringService, accountKey(username))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// List returns the indexed accounts that are still present
func (k *KeyringStore) List() ([]*Account, error) {
	k.mu.Lock()
	names := k.index()
	k.mu.Unlock()

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	accounts := make([]*Account, 0, len(sorted))
	for _, name := range sorted {
		if acc, err := k.Retrieve(name); err == nil {
			accounts = append(accounts, acc)
		}
	}
	return accounts, nil
}

// Delete removes the account and its index entry
func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	err := keyring.Delete(KeyringService, accountKey(username))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	names := k.index()
	delete(names, username)
	return k.writeIndex(names)
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(username string) bool {
	_, err := k.Retrieve(username)
	return err == nil
}

// index reads the username index; a missing or unreadable index is empty
func (k *KeyringStore) index() map[string]struct{} {
	names := make(map[string]struct{})
	raw, err := keyring.Get(KeyringService, indexKey)
	if err != nil {
		return names
	}
	var list []string
	if json.Unmarshal([]byte(raw), &list) != nil {
		return names
	}
	for _, n := range list {
		names[n] = struct{}{}
	}
	return names
}

func (k *KeyringStore) writeIndex(names map[string]struct{}) error {
	if len(names) == 0 {
		err := keyring.Delete(KeyringService, indexKey)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to update keyring index: %w", err)
		}
		return nil
	}
	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	sort.Strings(list)
	data, _ := json.Marshal(list)
	if err := keyring.Set(KeyringService, indexKey, string(data)); err != nil {
		return fmt.Errorf("failed to update keyring index: %w", err)
	}
	return nil
}
