// Package secrets resolves IMAP credentials from a configured provider.
// Credentials are resolved once per account per run and never written to
// the state database or report tree.
package secrets

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound means the provider has no credentials for the reference.
var ErrNotFound = errors.New("credentials not found")

// ErrLocked means the provider's backing store exists but is locked and
// needs user action (vault unlock, keychain login) before it can be read.
var ErrLocked = errors.New("credential store is locked")

// Credentials is a resolved username/password pair.
type Credentials struct {
	Username string
	Password string
}

// Provider resolves a configured reference to credentials.
type Provider interface {
	// Resolve returns the credentials for reference. It returns an error
	// wrapping ErrNotFound or ErrLocked when those conditions apply.
	Resolve(reference string) (Credentials, error)
}

// ForName returns the provider implementation for a configured name.
func ForName(name string) (Provider, error) {
	switch strings.ToLower(name) {
	case "env":
		return &EnvProvider{}, nil
	case "keyring":
		return &KeyringProvider{}, nil
	case "bitwarden":
		return &BitwardenProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", name)
	}
}
