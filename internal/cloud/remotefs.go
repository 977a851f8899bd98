// Package cloud defines the remote filesystem a backend session browses and
// the helpers shared by its object-store providers.
package cloud

import (
	"context"
	"errors"
	"sort"

	"github.com/rescale/dualpane/internal/models"
)

// RemoteFS is the remote side of a session. Paths are absolute and use "/"
// separators. Implementations must be safe for concurrent use.
type RemoteFS interface {
	// ConnectionInfo describes the connection for the status bar, e.g. "alice@host".
	ConnectionInfo() string

	List(ctx context.Context, dir string) ([]models.FileEntry, error)
	Stat(ctx context.Context, p string) (models.FileEntry, error)

	// MkdirAll creates p and any missing parents.
	MkdirAll(ctx context.Context, p string) error

	// Rename moves oldPath to newPath and fails with ErrExists if newPath exists.
	Rename(ctx context.Context, oldPath, newPath string) error

	// RemoveAll deletes a file or a whole directory tree.
	RemoveAll(ctx context.Context, p string) error

	// Download copies the remote file p into localPath.
	Download(ctx context.Context, p, localPath string) error

	// Upload copies localPath to the remote file p, replacing it.
	Upload(ctx context.Context, localPath, p string) error

	Close() error
}

// Errors returned by every provider, possibly wrapped.
var (
	ErrNotFound   = errors.New("no such file or directory")
	ErrExists     = errors.New("file already exists")
	ErrPermission = errors.New("permission denied")
	ErrNotDir     = errors.New("not a directory")

	// ErrConnectionLost means the session to the remote side is gone.
	ErrConnectionLost = errors.New("connection lost")
)

// SortEntries orders a listing with directories first, then by name.
func SortEntries(entries []models.FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}
