package auth

import (
	"os"
	"strings"
	"time"
)

const (
	usernameEnvVar = "IG_USERNAME"
	passwordEnvVar = "IG_PASSWORD"
)

// EnvironmentStore exposes IG_USERNAME and IG_PASSWORD as a read-only account.
// It only answers when both are set.
type EnvironmentStore struct{}

// NewEnvironmentStore creates the environment store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (EnvironmentStore) account() (*Account, bool) {
	user := strings.TrimSpace(os.Getenv(usernameEnvVar))
	pass := os.Getenv(passwordEnvVar)
	if user == "" || pass == "" {
		return nil, false
	}
	return &Account{Username: user, Password: pass, LastModified: time.Now()}, true
}

// Retrieve returns the environment account. A non-empty username must match
// IG_USERNAME, ignoring case.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	acc, ok := e.account()
	if !ok || (username != "" && !strings.EqualFold(username, acc.Username)) {
		return nil, ErrCredentialsNotFound
	}
	return acc, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	if acc, ok := e.account(); ok {
		return []*Account{acc}, nil
	}
	return []*Account{}, nil
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}

// Store always fails; the environment is not writable
func (e *EnvironmentStore) Store(*Account) error { return ErrStoreUnavailable }

// Delete always fails; the environment is not writable
func (e *EnvironmentStore) Delete(string) error { return ErrStoreUnavailable }
