package secretstore_test

import (
	"testing"

	"github.com/care/screenshare/internal/secretstore"
)

func TestAPIKeyReturnsEnvValue(t *testing.T) {
	t.Setenv("SCREENSHARE_TEST_KEY", "abc123")
	store := secretstore.New("SCREENSHARE_TEST_KEY")

	key, err := store.APIKey()
	if err != nil {
		t.Fatalf("APIKey() err = %v", err)
	}
	if key != "abc123" {
		t.Fatalf("APIKey() = %q, want abc123", key)
	}
}

func TestAPIKeyErrorsWhenUnset(t *testing.T) {
	store := secretstore.New("SCREENSHARE_UNSET_KEY_XYZ")
	if _, err := store.APIKey(); err == nil {
		t.Fatal("APIKey() on unset env var: want error, got nil")
	}
}
