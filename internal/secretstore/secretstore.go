// Package secretstore provides an environment-variable-backed
// ports.SecretStore, the narrowest implementation that lets the
// AI-chat path exercise the port without a dedicated secrets backend.
package secretstore

import (
	"fmt"
	"os"
)

// EnvStore reads the API key from a single environment variable.
type EnvStore struct {
	envVar string
}

// New returns an EnvStore reading from the given environment variable
// name.
func New(envVar string) *EnvStore {
	return &EnvStore{envVar: envVar}
}

// APIKey returns the current value of the configured environment
// variable, or an error if it is unset.
func (e *EnvStore) APIKey() (string, error) {
	v := os.Getenv(e.envVar)
	if v == "" {
		return "", fmt.Errorf("secretstore: %s is not set", e.envVar)
	}
	return v, nil
}
