// Package settings remembers the last scanner address and output preference
// between runs of esrreceiver.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

const (
	fileName   = "settings.yaml"
	appDirName = "esr-receiver"
)

// Settings is the persisted user state.
type Settings struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	AppendCR bool   `yaml:"append_cr"`
}

// Endpoint returns the remembered endpoint; ok is false when none is stored.
func (s Settings) Endpoint() (ep receiver.Endpoint, ok bool) {
	if s.Host == "" {
		return receiver.Endpoint{}, false
	}
	return receiver.Endpoint{Host: s.Host, Port: s.Port}, true
}

// Remember stores ep as the last used endpoint.
func (s *Settings) Remember(ep receiver.Endpoint) {
	s.Host = ep.Host
	s.Port = ep.Port
	if s.Port == receiver.DefaultPort {
		s.Port = 0
	}
}

// Store loads and saves Settings in a single file.
type Store struct {
	path string
}

// NewStore returns a Store for path. An empty path selects
// <user config dir>/esr-receiver/settings.yaml.
func NewStore(path string) *Store {
	if path == "" {
		path = filepath.Join(defaultDir(), fileName)
	}
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings. A missing file yields zero Settings.
func (s *Store) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var st Settings
	if err := yaml.Unmarshal(data, &st); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return st, nil
}

// Save writes the settings using a temp file and rename.
func (s *Store) Save(st Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename settings file: %w", err)
	}
	committed = true

	return nil
}

func defaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, appDirName)
}
