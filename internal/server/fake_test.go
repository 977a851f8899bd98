package server

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rescale/dualpane/internal/cloud"
	"github.com/rescale/dualpane/internal/models"
)

// memFS is an in-memory cloud.RemoteFS. Directories map to nil content.
type memFS struct {
	mu    sync.Mutex
	nodes map[string][]byte
	dirs  map[string]bool
	err   map[string]error // keyed by method name
}

func newMemFS() *memFS {
	return &memFS{
		nodes: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
		err:   map[string]error{},
	}
}

func (m *memFS) mkfile(p, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[p] = []byte(content)
}

func (m *memFS) mkdir(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[p] = true
}

func (m *memFS) exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, file := m.nodes[p]
	return file || m.dirs[p]
}

func (m *memFS) content(p string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.nodes[p])
}

func (m *memFS) ConnectionInfo() string { return "alice@files.example.com" }

func (m *memFS) List(ctx context.Context, dir string) ([]models.FileEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err["List"]; err != nil {
		return nil, err
	}
	if _, isFile := m.nodes[dir]; isFile {
		return nil, cloud.ErrNotDir
	}
	if !m.dirs[dir] {
		return nil, cloud.ErrNotFound
	}

	var out []models.FileEntry
	for p := range m.dirs {
		if p != "/" && path.Dir(p) == dir {
			out = append(out, models.FileEntry{Name: path.Base(p), Path: p, IsDir: true})
		}
	}
	for p, data := range m.nodes {
		if path.Dir(p) == dir {
			out = append(out, models.FileEntry{Name: path.Base(p), Path: p, Size: int64(len(data))})
		}
	}
	cloud.SortEntries(out)
	return out, nil
}

func (m *memFS) Stat(ctx context.Context, p string) (models.FileEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.nodes[p]; ok {
		return models.FileEntry{Name: path.Base(p), Path: p, Size: int64(len(data))}, nil
	}
	if m.dirs[p] {
		return models.FileEntry{Name: path.Base(p), Path: p, IsDir: true}, nil
	}
	return models.FileEntry{}, cloud.ErrNotFound
}

func (m *memFS) MkdirAll(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err["MkdirAll"]; err != nil {
		return err
	}
	for d := p; d != "/"; d = path.Dir(d) {
		m.dirs[d] = true
	}
	return nil
}

func (m *memFS) Rename(ctx context.Context, oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[newPath]; ok || m.dirs[newPath] {
		return cloud.ErrExists
	}
	data, ok := m.nodes[oldPath]
	if !ok {
		return cloud.ErrNotFound
	}
	delete(m.nodes, oldPath)
	m.nodes[newPath] = data
	return nil
}

func (m *memFS) RemoveAll(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err["RemoveAll"]; err != nil {
		return err
	}
	for k := range m.nodes {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.nodes, k)
		}
	}
	for k := range m.dirs {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.dirs, k)
		}
	}
	return nil
}

func (m *memFS) Download(ctx context.Context, p, localPath string) error {
	m.mu.Lock()
	data, ok := m.nodes[p]
	m.mu.Unlock()
	if !ok {
		return cloud.ErrNotFound
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (m *memFS) Upload(ctx context.Context, localPath, p string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err["Upload"]; err != nil {
		return err
	}
	m.nodes[p] = data
	return nil
}

func (m *memFS) Close() error { return nil }

// sortedKeys is used by tests to report state on failure.
func (m *memFS) sortedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
