package state

import (
	"bytes"
	"encoding/json" // For JSON encoding and decoding of the state file
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"devsetup/internal/logger"
)

// PackageState records one package or tool the installer applied successfully.
type PackageState struct {
	Manager     string    `json:"manager"`                // apt, pip, npm, brew, winget, github, url
	Name        string    `json:"name"`                   // Package or tool name as written in the manifest
	Version     string    `json:"version,omitempty"`      // Tool version, empty for package-manager packages
	InstallPath string    `json:"install_path,omitempty"` // Absolute path of an installed binary, when known
	InstalledAt time.Time `json:"installed_at"`
}

// BackupState describes the most recent successful backup run.
type BackupState struct {
	Dir       string    `json:"dir"`
	Encrypted bool      `json:"encrypted"`
	Bytes     int64     `json:"bytes"`
	At        time.Time `json:"at"`
}

// State holds everything devsetup remembers between runs.
// Packages is keyed by "manager:name".
type State struct {
	mu sync.Mutex

	Packages     map[string]PackageState `json:"packages"`
	LastBackup   *BackupState            `json:"last_backup,omitempty"`
	DotfilesSync time.Time               `json:"dotfiles_sync,omitempty"`
}

// New returns an empty state with initialised maps.
func New() *State {
	return &State{Packages: make(map[string]PackageState)}
}

// Key builds the Packages map key for a manager and package name.
func Key(manager, name string) string {
	return manager + ":" + name
}

// Load loads the saved state from a JSON file at the given path.
// If the file does not exist or cannot be parsed, it returns a new empty State.
func Load(path string) *State {
	file, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("[WARN] Cannot read state file %s: %v. Starting fresh.\n", path, err)
		}
		return New()
	}

	st := New()
	if err := json.Unmarshal(file, st); err != nil {
		logger.Warn("[WARN] State file %s is corrupt (%v). Starting fresh.\n", path, err)
		return New()
	}

	// Ensure the map is initialised if the JSON contained null
	if st.Packages == nil {
		st.Packages = make(map[string]PackageState)
	}
	return st
}

// Save writes the state as indented JSON, replacing the file atomically.
func Save(path string, st *State) error {
	st.mu.Lock()
	data, err := json.MarshalIndent(st, "", "  ")
	st.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	logger.Debug("[DEBUG] Writing state to %s (%d bytes)\n", path, len(data))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write state file %s: %w", path, err)
	}
	return nil
}

// Installed reports whether manager:name is recorded, and for versioned tools
// whether the recorded version matches.
func (s *State) Installed(manager, name, version string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Packages[Key(manager, name)]
	return ok && p.Version == version
}

// RecordPackage stores a successful install. Safe for concurrent use.
func (s *State) RecordPackage(p PackageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.InstalledAt.IsZero() {
		p.InstalledAt = time.Now()
	}
	s.Packages[Key(p.Manager, p.Name)] = p
}

// Forget removes a package entry.
func (s *State) Forget(manager, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Packages, Key(manager, name))
}

// PackagesFor returns the recorded packages of one manager, sorted by name.
func (s *State) PackagesFor(manager string) []PackageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PackageState
	for _, p := range s.Packages {
		if p.Manager == manager {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecordBackup stores the latest backup run.
func (s *State) RecordBackup(b BackupState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastBackup = &b
}

// RecordDotfilesSync stores the time of the latest dotfiles sync.
func (s *State) RecordDotfilesSync(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DotfilesSync = at
}
