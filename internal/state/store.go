package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ServiceState is the persisted on/off switch.
type ServiceState string

const (
	Enabled  ServiceState = "enabled"
	Disabled ServiceState = "disabled"
)

// Store persists the ServiceState across restarts.
type Store interface {
	Load() (ServiceState, error)
	Save(ServiceState) error
}

type fileContents struct {
	State ServiceState `yaml:"state"`
}

// FileStore keeps the state in a small YAML file. A missing file reads
// as Disabled.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (ServiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Disabled, nil
	}
	if err != nil {
		return Disabled, fmt.Errorf("state: read %s: %w", s.path, err)
	}

	var c fileContents
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Disabled, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	switch ServiceState(strings.ToLower(string(c.State))) {
	case Enabled:
		return Enabled, nil
	case Disabled, "":
		return Disabled, nil
	default:
		return Disabled, fmt.Errorf("state: unknown service state %q in %s", c.State, s.path)
	}
}

func (s *FileStore) Save(st ServiceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(fileContents{State: st})
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("state: create %s: %w", dir, err)
		}
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: rename %s: %w", tmp, err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	state ServiceState
}

func (m *MemoryStore) Load() (ServiceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == "" {
		return Disabled, nil
	}
	return m.state, nil
}

func (m *MemoryStore) Save(st ServiceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
	return nil
}
