package cli

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/models"
)

// fakeBackend is an in-memory core.Backend. Each domain maps paths to isDir.
type fakeBackend struct {
	mu        sync.Mutex
	files     map[models.Domain]map[string]bool
	statusErr error
	shutdowns int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{files: map[models.Domain]map[string]bool{
		models.DomainLocal: {
			"/home/alice/temporary":            true,
			"/home/alice/temporary/report.csv": false,
		},
		models.DomainRemote: {
			"/data":         true,
			"/data/old.log": false,
		},
	}}
}

func (f *fakeBackend) has(domain models.Domain, p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[domain][p]
	return ok
}

func (f *fakeBackend) GetStatus(ctx context.Context) (*models.SessionStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &models.SessionStatus{
		Connected:   true,
		Connection:  "alice@files.example.com",
		DownloadDir: "/home/alice/temporary",
	}, nil
}

func (f *fakeBackend) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeBackend) List(ctx context.Context, domain models.Domain, dir string) ([]models.FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	isDir, ok := f.files[domain][dir]
	if dir != "/" && (!ok || !isDir) {
		return nil, api.NewError(api.KindNotFound, "list", "no such file or directory")
	}
	out := []models.FileEntry{}
	for p, d := range f.files[domain] {
		if p != dir && path.Dir(p) == dir {
			out = append(out, models.FileEntry{Name: path.Base(p), Path: p, IsDir: d, Size: 2048})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeBackend) Mkdir(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[models.DomainRemote][p] = true
	return nil
}

func (f *fakeBackend) Rename(ctx context.Context, oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote := f.files[models.DomainRemote]
	if _, exists := remote[newPath]; exists {
		return api.NewError(api.KindConflict, "rename", "file already exists")
	}
	remote[newPath] = remote[oldPath]
	delete(remote, oldPath)
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files[models.DomainRemote], p)
	return nil
}

func (f *fakeBackend) Download(ctx context.Context, remotePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	local := path.Join("/home/alice/temporary", path.Base(remotePath))
	f.files[models.DomainLocal][local] = false
	return local, nil
}

func (f *fakeBackend) Upload(ctx context.Context, localPath, remoteDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote := path.Join(remoteDir, path.Base(localPath))
	f.files[models.DomainRemote][remote] = false
	return remote, nil
}
