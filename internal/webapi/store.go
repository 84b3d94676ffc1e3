package webapi

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dynlab/dynlab/internal/turns"
)

// ErrThreadNotFound is returned when a name does not match any configured
// thread.
var ErrThreadNotFound = errors.New("thread not found")

// ThreadStore provides access to thread data.
type ThreadStore interface {
	// ListThreads returns the configured threads sorted by name.
	ListThreads() ([]ThreadSummary, error)
	// GetThread returns the turns of a single thread.
	GetThread(name string) (*turns.Thread, error)
}

// FileStore serves threads from CSV files. Each file is read on first access
// and cached until Reload.
type FileStore struct {
	paths map[string]string

	mu    sync.RWMutex
	cache map[string]*turns.Thread
}

// NewFileStore creates a FileStore over a name → CSV path map.
func NewFileStore(paths map[string]string) *FileStore {
	cp := make(map[string]string, len(paths))
	for k, v := range paths {
		cp[k] = v
	}
	return &FileStore{
		paths: cp,
		cache: make(map[string]*turns.Thread),
	}
}

// ListThreads returns all configured threads sorted by name.
func (fs *FileStore) ListThreads() ([]ThreadSummary, error) {
	out := make([]ThreadSummary, 0, len(fs.paths))
	for name, path := range fs.paths {
		out = append(out, ThreadSummary{Name: name, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetThread returns the named thread, loading its CSV if needed.
func (fs *FileStore) GetThread(name string) (*turns.Thread, error) {
	path, ok := fs.paths[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrThreadNotFound, name)
	}

	fs.mu.RLock()
	th, ok := fs.cache[name]
	fs.mu.RUnlock()
	if ok {
		return th, nil
	}

	rows, err := turns.LoadCSV(path)
	if err != nil {
		return nil, err
	}
	th = &turns.Thread{Name: name, Turns: rows}
	slog.Debug("loaded thread", "name", name, "path", path, "turns", len(rows))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	// Another request may have loaded it meanwhile; keep the first copy.
	if cached, ok := fs.cache[name]; ok {
		return cached, nil
	}
	fs.cache[name] = th
	return th, nil
}

// Reload drops all cached threads so the next access re-reads the files.
func (fs *FileStore) Reload() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.cache = make(map[string]*turns.Thread)
}
