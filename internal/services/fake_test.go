package services

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/models"
)

// fakeFS is an in-memory backend. Each domain is a set of paths; a path
// ending in "/" is a directory marker. Calls can be held open with gates.
type fakeFS struct {
	mu    sync.Mutex
	files map[models.Domain]map[string]bool // path -> isDir

	listErr map[string]error // keyed by "domain:path"
	gates   map[string]chan struct{}
	entered map[string]chan struct{}

	mutationErr map[string]error // keyed by op
	calls       []string
	downloadDir string
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		files: map[models.Domain]map[string]bool{
			models.DomainLocal:  {},
			models.DomainRemote: {},
		},
		listErr:     map[string]error{},
		gates:       map[string]chan struct{}{},
		entered:     map[string]chan struct{}{},
		mutationErr: map[string]error{},
		downloadDir: "/home/alice/temporary",
	}
}

func (f *fakeFS) add(domain models.Domain, p string, isDir bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[domain][p] = isDir
}

// hold makes the next call with this key block until the returned func is called.
// The entered channel is closed once the call is blocked.
func (f *fakeFS) hold(key string) (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	in := make(chan struct{})
	f.gates[key] = gate
	f.entered[key] = in
	return in, func() { close(gate) }
}

func (f *fakeFS) wait(ctx context.Context, key string) error {
	f.mu.Lock()
	gate, ok := f.gates[key]
	in := f.entered[key]
	delete(f.gates, key)
	delete(f.entered, key)
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	close(in)
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFS) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeFS) List(ctx context.Context, domain models.Domain, dir string) ([]models.FileEntry, error) {
	key := string(domain) + ":" + dir
	if err := f.wait(ctx, key); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.listErr[key]; ok {
		return nil, err
	}

	var out []models.FileEntry
	for p, isDir := range f.files[domain] {
		if path.Dir(p) != dir || p == dir {
			continue
		}
		out = append(out, models.FileEntry{Name: path.Base(p), Path: p, IsDir: isDir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeFS) mutation(ctx context.Context, op string) error {
	if err := f.wait(ctx, op); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutationErr[op]
}

func (f *fakeFS) Mkdir(ctx context.Context, p string) error {
	if err := f.mutation(ctx, "mkdir"); err != nil {
		return err
	}
	f.add(models.DomainRemote, p, true)
	return nil
}

func (f *fakeFS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := f.mutation(ctx, "rename"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	remote := f.files[models.DomainRemote]
	if _, exists := remote[newPath]; exists {
		return api.NewError(api.KindConflict, "rename", "file already exists")
	}
	isDir, ok := remote[oldPath]
	if !ok {
		return api.NewError(api.KindNotFound, "rename", "no such file")
	}
	delete(remote, oldPath)
	remote[newPath] = isDir
	return nil
}

func (f *fakeFS) Delete(ctx context.Context, p string) error {
	if err := f.mutation(ctx, "delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files[models.DomainRemote], p)
	return nil
}

func (f *fakeFS) Download(ctx context.Context, remotePath string) (string, error) {
	if err := f.mutation(ctx, "download"); err != nil {
		return "", err
	}
	local := f.downloadDir + "/" + path.Base(remotePath)
	f.add(models.DomainLocal, local, false)
	return local, nil
}

func (f *fakeFS) Upload(ctx context.Context, localPath, remoteDir string) (string, error) {
	if err := f.mutation(ctx, "upload"); err != nil {
		return "", err
	}
	remote := path.Join(remoteDir, path.Base(localPath))
	f.add(models.DomainRemote, remote, false)
	return remote, nil
}
