package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads credentials from MAILTRIAGE_<REF>_USERNAME and
// MAILTRIAGE_<REF>_PASSWORD. The reference is uppercased to form the key.
type EnvProvider struct{}

// Resolve implements Provider.
func (p *EnvProvider) Resolve(reference string) (Credentials, error) {
	key := strings.ToUpper(reference)
	username := os.Getenv(fmt.Sprintf("MAILTRIAGE_%s_USERNAME", key))
	password := os.Getenv(fmt.Sprintf("MAILTRIAGE_%s_PASSWORD", key))
	if username == "" || password == "" {
		return Credentials{}, fmt.Errorf("%w: env vars MAILTRIAGE_%s_USERNAME/MAILTRIAGE_%s_PASSWORD not set",
			ErrNotFound, key, key)
	}
	return Credentials{Username: username, Password: password}, nil
}
