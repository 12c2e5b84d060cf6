package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStoreRoundtrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	cred := &Credential{
		AccessToken:  "ya29.test-access",
		RefreshToken: "1//test-refresh",
		Expiry:       time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	if err := store.Save(cred); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := store.Load()
	if loaded == nil {
		t.Fatal("Load returned nil after Save")
	}
	if loaded.AccessToken != cred.AccessToken || loaded.RefreshToken != cred.RefreshToken {
		t.Errorf("Loaded credential differs: %+v", loaded)
	}
	if !loaded.Expiry.Equal(cred.Expiry) {
		t.Errorf("Loaded expiry = %v, want %v", loaded.Expiry, cred.Expiry)
	}

	// Token file must not be world readable
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Token file mode = %o, want 0600", info.Mode().Perm())
	}

	// On-disk content must not contain the plaintext token
	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(raw), "ya29.test-access") {
		t.Error("Token stored in plaintext")
	}
}

func TestStoreMissingFileIsAbsent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if cred := store.Load(); cred != nil {
		t.Errorf("Load of missing file returned %+v, want nil", cred)
	}
}

func TestStoreCorruptFileIsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	// Corruption must degrade to "no credential", never to a fatal error
	if err := os.WriteFile(store.Path(), []byte("not an encrypted token"), 0600); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}
	if cred := store.Load(); cred != nil {
		t.Errorf("Load of corrupt file returned %+v, want nil", cred)
	}
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Save(&Credential{AccessToken: "a", Expiry: time.Now()}); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("Temp file left behind: %s", filepath.Join(dir, e.Name()))
		}
	}
}

func TestStoreClear(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Save(&Credential{AccessToken: "a", Expiry: time.Now()}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cred := store.Load(); cred != nil {
		t.Errorf("Load after Clear returned %+v, want nil", cred)
	}
	// Clearing twice is fine
	if err := store.Clear(); err != nil {
		t.Errorf("Second Clear failed: %v", err)
	}
}

func TestCredentialUsableMargin(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		cred   *Credential
		usable bool
	}{
		{"nil credential", nil, false},
		{"no access token", &Credential{Expiry: now.Add(time.Hour)}, false},
		{"well before margin", &Credential{AccessToken: "a", Expiry: now.Add(time.Hour)}, true},
		{"inside margin", &Credential{AccessToken: "a", Expiry: now.Add(ExpiryMargin - time.Second)}, false},
		{"exactly at margin", &Credential{AccessToken: "a", Expiry: now.Add(ExpiryMargin)}, false},
		{"just outside margin", &Credential{AccessToken: "a", Expiry: now.Add(ExpiryMargin + time.Second)}, true},
		{"expired", &Credential{AccessToken: "a", Expiry: now.Add(-time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Usable(now); got != tt.usable {
				t.Errorf("Usable = %v, want %v", got, tt.usable)
			}
		})
	}
}
