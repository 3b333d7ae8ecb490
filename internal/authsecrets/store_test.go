package authsecrets

import (
	"path/filepath"
	"testing"

	"github.com/loomrun/coreagent/pkg/models"
)

func TestCredentialStoreRoundTripsSignedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := OpenCredentialStore(path, []byte("test-secret"))
	if err != nil {
		t.Fatalf("OpenCredentialStore: %v", err)
	}

	if err := store.Set("openai", "sk-test-123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	key, ok := store.Get("openai")
	if !ok || key != "sk-test-123" {
		t.Fatalf("Get = %q, ok=%v, want sk-test-123", key, ok)
	}
}

func TestCredentialStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := OpenCredentialStore(path, []byte("test-secret"))
	if err != nil {
		t.Fatalf("OpenCredentialStore: %v", err)
	}
	if err := store.Set("anthropic", "sk-ant-456"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := OpenCredentialStore(path, []byte("test-secret"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	key, ok := reopened.Get("anthropic")
	if !ok || key != "sk-ant-456" {
		t.Fatalf("Get after reopen = %q, ok=%v", key, ok)
	}
}

func TestCredentialStoreRejectsTokenSignedWithWrongSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := OpenCredentialStore(path, []byte("secret-a"))
	if err != nil {
		t.Fatalf("OpenCredentialStore: %v", err)
	}
	if err := store.Set("openai", "sk-test"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	wrongSecret, err := OpenCredentialStore(path, []byte("secret-b"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := wrongSecret.Get("openai"); ok {
		t.Fatal("Get should fail verification under a different secret")
	}
}

func TestCredentialStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := OpenCredentialStore(path, []byte("secret"))
	if err != nil {
		t.Fatalf("OpenCredentialStore: %v", err)
	}
	if err := store.Set("openai", "sk-test"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Delete("openai"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.Get("openai"); ok {
		t.Fatal("Get should fail after Delete")
	}
}

func TestEnvVarNameUppercasesAndReplacesDashes(t *testing.T) {
	if got := envVarName(models.ProviderId("my-provider")); got != "MY_PROVIDER_API_KEY" {
		t.Fatalf("envVarName = %q, want MY_PROVIDER_API_KEY", got)
	}
}
