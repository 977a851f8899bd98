// Package services holds the frontend-agnostic browser logic: one controller
// per pane and the orchestrator that sequences mutations and reloads.
package services

import (
	"context"
	"errors"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/models"
)

// Lister lists one directory of a domain.
type Lister interface {
	List(ctx context.Context, domain models.Domain, path string) ([]models.FileEntry, error)
}

// RemoteFileSystem is the backend surface the orchestrator needs.
// *api.Client implements it.
type RemoteFileSystem interface {
	Lister
	Mkdir(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Delete(ctx context.Context, path string) error
	Download(ctx context.Context, remotePath string) (string, error)
	Upload(ctx context.Context, localPath, remoteDir string) (string, error)
}

// MutationOp names a mutation.
type MutationOp string

const (
	OpUpload   MutationOp = "upload"
	OpDownload MutationOp = "download"
	OpMkdir    MutationOp = "mkdir"
	OpRename   MutationOp = "rename"
	OpDelete   MutationOp = "delete"
)

// MutationResult describes a mutation that reached the backend successfully.
type MutationResult struct {
	ID     string
	Op     MutationOp
	Source string // path the mutation acted on
	Target string // path it produced: remote path for upload/mkdir/rename, local path for download

	// ReloadErr is set when the mutation succeeded but refreshing the
	// affected pane failed. The pane then still shows its previous listing.
	ReloadErr error
}

var (
	// ErrSuperseded is returned by a listing whose result was discarded
	// because a newer request for the same pane was issued meanwhile.
	ErrSuperseded = errors.New("listing superseded by a newer request")

	// ErrNoSelection is returned when an operation needs a selected entry.
	ErrNoSelection = &api.Error{Kind: api.KindInvalid, Message: "no file selected"}
)
