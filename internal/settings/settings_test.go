package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

func TestNewStore_DefaultPath(t *testing.T) {
	s := NewStore("")
	if filepath.Base(s.Path()) != fileName {
		t.Errorf("Path() = %q, want base %q", s.Path(), fileName)
	}
	if filepath.Base(filepath.Dir(s.Path())) != appDirName {
		t.Errorf("Path() = %q, want parent %q", s.Path(), appDirName)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.yaml"))

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if st != (Settings{}) {
		t.Errorf("Load() = %+v, want zero", st)
	}
	if _, ok := st.Endpoint(); ok {
		t.Error("Endpoint() ok = true for empty settings")
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	s := NewStore(path)

	var st Settings
	st.Remember(receiver.Endpoint{Host: "192.168.1.20", Port: 9000})
	st.AppendCR = true

	if err := s.Save(st); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != st {
		t.Errorf("Load() = %+v, want %+v", got, st)
	}

	ep, ok := got.Endpoint()
	if !ok {
		t.Fatal("Endpoint() ok = false")
	}
	if ep.Address() != "192.168.1.20:9000" {
		t.Errorf("Endpoint().Address() = %q", ep.Address())
	}

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestSettings_RememberDefaultPort(t *testing.T) {
	var st Settings
	st.Remember(receiver.NewEndpoint("scanner.local"))
	if st.Port != 0 {
		t.Errorf("Port = %d, want 0 for default port", st.Port)
	}

	ep, _ := st.Endpoint()
	if ep.Address() != "scanner.local:8765" {
		t.Errorf("Endpoint().Address() = %q", ep.Address())
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("host: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStore(path).Load(); err == nil {
		t.Error("Load() expected error for corrupt file")
	}
}
