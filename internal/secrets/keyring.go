package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const keyringService = "mailtriage"

// KeyringProvider reads credentials from the OS keyring. The stored value
// for a reference is "username\npassword".
type KeyringProvider struct {
	// open is replaceable in tests.
	open func() (keyring.Keyring, error)
}

func openRing() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailtriage/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailtriage-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// Resolve implements Provider.
func (p *KeyringProvider) Resolve(reference string) (Credentials, error) {
	open := p.open
	if open == nil {
		open = openRing
	}
	ring, err := open()
	if err != nil {
		return Credentials{}, err
	}

	item, err := ring.Get(reference)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return Credentials{}, fmt.Errorf("%w: keyring item %q", ErrNotFound, reference)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read keyring item %q: %w", reference, err)
	}

	return parseUserPass(string(item.Data), reference)
}

// Store writes credentials for a reference, for use by the setup command.
func (p *KeyringProvider) Store(reference string, creds Credentials) error {
	open := p.open
	if open == nil {
		open = openRing
	}
	ring, err := open()
	if err != nil {
		return err
	}
	err = ring.Set(keyring.Item{
		Key:  reference,
		Data: []byte(creds.Username + "\n" + creds.Password),
	})
	if err != nil {
		return fmt.Errorf("store keyring item %q: %w", reference, err)
	}
	return nil
}

func parseUserPass(data, reference string) (Credentials, error) {
	parts := strings.SplitN(data, "\n", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Credentials{}, fmt.Errorf("%w: keyring item %q is not username\\npassword", ErrNotFound, reference)
	}
	return Credentials{Username: parts[0], Password: strings.TrimRight(parts[1], "\n")}, nil
}
