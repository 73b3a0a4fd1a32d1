// Package docstore is the read/replace capability for the authoritative
// documents (the ledger and the version marker).
//
// Components never write those files directly; they go through a [Store] so
// every replacement is atomic and tests can run against [Memory].
package docstore

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/calvinalkan/truth/internal/fs"
)

// ErrNotFound is returned by [Store.Read] for a missing document.
var ErrNotFound = errors.New("document not found")

// Store reads and atomically replaces named documents. Names are
// slash-separated paths relative to the repository root.
type Store interface {
	Read(name string) ([]byte, error)
	Replace(name string, data []byte) error
}

const filePerm = 0o644

// Files is a [Store] backed by an [fs.FS] rooted at Root.
type Files struct {
	FS   fs.FS
	Root string
}

// NewFiles returns a Files store rooted at root.
func NewFiles(fsys fs.FS, root string) *Files {
	return &Files{FS: fsys, Root: root}
}

func (f *Files) path(name string) string {
	return filepath.Join(f.Root, filepath.FromSlash(name))
}

// Read returns the document bytes. A missing file wraps [ErrNotFound].
func (f *Files) Read(name string) ([]byte, error) {
	data, err := f.FS.ReadFile(f.path(name))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return data, nil
}

// Replace atomically writes data, creating parent directories as needed.
// An existing file keeps its permissions.
func (f *Files) Replace(name string, data []byte) error {
	p := f.path(name)

	err := f.FS.MkdirAll(filepath.Dir(p), 0o755)
	if err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}

	var perm os.FileMode = filePerm
	if info, statErr := f.FS.Stat(p); statErr == nil {
		perm = info.Mode().Perm()
	}

	err = f.FS.WriteFileAtomic(p, data, perm)
	if err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}

	return nil
}

// Memory is an in-memory [Store] for tests. Failures can be injected per
// document name.
type Memory struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failures map[string]error
	writes   int
}

// NewMemory returns a Memory store seeded with docs.
func NewMemory(docs map[string]string) *Memory {
	m := &Memory{docs: make(map[string][]byte), failures: make(map[string]error)}
	for name, text := range docs {
		m.docs[name] = []byte(text)
	}

	return m
}

// FailReplace makes every later Replace of name return err. A nil err clears it.
func (m *Memory) FailReplace(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, name)

		return
	}

	m.failures[name] = err
}

// Read returns a copy of the document.
func (m *Memory) Read(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return slices.Clone(data), nil
}

// Replace stores a copy of data.
func (m *Memory) Replace(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[name]; err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}

	m.docs[name] = slices.Clone(data)
	m.writes++

	return nil
}

// Writes returns the number of successful replacements.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes
}

// Names returns the stored document names, sorted.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Sorted(maps.Keys(m.docs))
}

// Compile-time interface checks.
var (
	_ Store = (*Files)(nil)
	_ Store = (*Memory)(nil)
)
