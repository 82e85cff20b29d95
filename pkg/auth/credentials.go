package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Account holds the Instagram login the relay runs as
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// SessionID is the cookie from the last successful login, when one was kept
	SessionID    string    `json:"session_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is one place accounts can be kept
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]*Account, error)
	Delete(username string) error
	Exists(username string) bool
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Manager consults several stores in priority order
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager over the OS keyring, an encrypted
// file in the config directory and the environment, in that order. A
// keyring that does not answer is skipped.
func NewManager() (*Manager, error) {
	var stores []CredentialStore
	if k, err := NewKeyringStore(); err == nil {
		stores = append(stores, k)
	}

	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	vault, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}

	stores = append(stores, vault, NewEnvironmentStore())
	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores, first match wins
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store stamps the account and saves it in the first store that accepts it
func (m *Manager) Store(account *Account) error {
	switch {
	case account == nil || strings.TrimSpace(account.Username) == "":
		return errors.New("username is required")
	case account.Password == "":
		return errors.New("password is required")
	}
	account.LastModified = time.Now()

	var errs []error
	for _, s := range m.stores {
		err := s.Store(account)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("failed to store credentials: %w", errors.Join(errs...))
}

// Retrieve returns the account for username from the first store holding it
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, s := range m.stores {
		if acc, err := s.Retrieve(username); err == nil && acc != nil {
			return acc, nil
		}
	}
	return nil, fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault picks the account a run logs in as: the environment when
// both IG_USERNAME and IG_PASSWORD are set, otherwise the account stored
// most recently.
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, s := range m.stores {
		if env, ok := s.(*EnvironmentStore); ok {
			if acc, err := env.Retrieve(""); err == nil {
				return acc, nil
			}
		}
	}

	accounts, _ := m.List()
	if len(accounts) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return accounts[0], nil
}

// List merges every store's accounts, newest first. A username kept in
// several stores is reported once with its newest copy. Unreadable stores
// are skipped.
func (m *Manager) List() ([]*Account, error) {
	newest := make(map[string]*Account)
	for _, s := range m.stores {
		accounts, err := s.List()
		if err != nil {
			continue
		}
		for _, acc := range accounts {
			if cur, ok := newest[acc.Username]; !ok || acc.LastModified.After(cur.LastModified) {
				newest[acc.Username] = acc
			}
		}
	}

	out := make([]*Account, 0, len(newest))
	for _, acc := range newest {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].Username < out[j].Username
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// Delete removes username from every writable store
func (m *Manager) Delete(username string) error {
	removed := false
	for _, s := range m.stores {
		if err := s.Delete(username); err == nil {
			removed = true
		}
	}
	if !removed {
		return fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
	}
	return nil
}

// ConfigDir returns the per-user configuration directory, creating it if needed
func ConfigDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "instabridge")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "instabridge")
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, ".config")
		}
		dir = filepath.Join(base, "instabridge")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount creates a copy of the account with secrets masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	return &Account{
		Username:     account.Username,
		Password:     mask(account.Password),
		SessionID:    mask(account.SessionID),
		LastModified: account.LastModified,
	}
}

// mask keeps the first and last four characters of long secrets
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
