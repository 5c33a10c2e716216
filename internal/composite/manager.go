package composite

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrCompositorNotFound is returned when a requested compositor cannot be found.
var ErrCompositorNotFound = errors.New("compositor not found")

// Manager discovers compositors below a directory.
type Manager struct {
	dir         string
	compositors map[string]*Compositor
	mu          sync.RWMutex
}

// NewManager creates a new Manager for dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:         dir,
		compositors: make(map[string]*Compositor),
	}
}

// Discover scans every subdirectory of the compositor directory for a compositor.json manifest.
// Unreadable or invalid manifests are skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.compositors = make(map[string]*Compositor)

	info, err := os.Stat(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil || manifest.Name == "" || manifest.Executable == "" {
			continue
		}

		m.compositors[manifest.Name] = &Compositor{
			Manifest:   manifest,
			Path:       path,
			Executable: filepath.Join(path, manifest.Executable),
		}
	}

	return nil
}

// Get returns a compositor by name.
// Returns ErrCompositorNotFound if it does not exist.
func (m *Manager) Get(name string) (*Compositor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.compositors[name]
	if !ok {
		return nil, ErrCompositorNotFound
	}
	return c, nil
}

// List returns the discovered compositors ordered by name.
func (m *Manager) List() []*Compositor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Compositor, 0, len(m.compositors))
	for _, c := range m.compositors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

// Dir returns the compositor directory path.
func (m *Manager) Dir() string {
	return m.dir
}
