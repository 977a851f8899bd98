// Package azure serves a session's remote side from an Azure Blob container.
package azure

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog/log"

	"github.com/rescale/dualpane/internal/cloud"
	"github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/models"
)

// Provider is a cloud.RemoteFS over one container and blob prefix.
// Blob names ending in "/" and hierarchy prefixes are directories.
type Provider struct {
	store     blobStore
	container string
	prefix    string
	info      string
}

// New creates a provider. With an account key the client signs requests
// with it; otherwise ServiceURL must carry a SAS token.
func New(cfg config.AzureConfig, httpClient *nethttp.Client) (*Provider, error) {
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	opts := &azblob.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}

	var client *azblob.Client
	var err error
	if cfg.AccountKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("invalid Azure account key: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, opts)
	} else {
		client, err = azblob.NewClientWithNoCredential(serviceURL, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	store := containerStore{client: client.ServiceClient().NewContainerClient(cfg.Container)}
	p := newProvider(store, cfg.Container, cfg.Prefix)
	p.info = fmt.Sprintf("%s/%s", hostOf(serviceURL), cfg.Container)

	log.Info().Str("account", cfg.Account).Str("container", cfg.Container).Str("prefix", cfg.Prefix).Msg("azure storage configured")
	return p, nil
}

func newProvider(store blobStore, containerName, prefix string) *Provider {
	return &Provider{
		store:     store,
		container: containerName,
		prefix:    strings.Trim(prefix, "/"),
		info:      containerName,
	}
}

func hostOf(serviceURL string) string {
	u, err := url.Parse(serviceURL)
	if err != nil || u.Host == "" {
		return serviceURL
	}
	return u.Host
}

func (p *Provider) ConnectionInfo() string {
	if p.prefix == "" {
		return p.info
	}
	return p.info + "/" + p.prefix
}

func (p *Provider) List(ctx context.Context, dir string) ([]models.FileEntry, error) {
	dirPrefix := cloud.DirPrefix(p.prefix, dir)
	prefixes, blobs, err := p.store.listHierarchy(ctx, dirPrefix)
	if err != nil {
		return nil, mapError("list", dir, err)
	}

	found := dir == "/" || dir == "" || len(prefixes) > 0 || len(blobs) > 0
	if !found {
		if _, err := p.store.properties(ctx, cloud.ObjectKey(p.prefix, dir)); err == nil {
			return nil, fmt.Errorf("list %s: %w", dir, cloud.ErrNotDir)
		}
		return nil, fmt.Errorf("list %s: %w", dir, cloud.ErrNotFound)
	}

	entries := make([]models.FileEntry, 0, len(prefixes)+len(blobs))
	for _, name := range prefixes {
		entries = append(entries, dirEntry(cloud.RemotePath(p.prefix, name)))
	}
	for _, b := range blobs {
		if b.name == dirPrefix {
			continue
		}
		entries = append(entries, fileEntry(cloud.RemotePath(p.prefix, b.name), b.size, b.modTime))
	}
	cloud.SortEntries(entries)
	return entries, nil
}

func (p *Provider) Stat(ctx context.Context, name string) (models.FileEntry, error) {
	if name == "/" || name == "" {
		return dirEntry("/"), nil
	}
	info, err := p.store.properties(ctx, cloud.ObjectKey(p.prefix, name))
	if err == nil {
		return fileEntry(path.Clean(name), info.size, info.modTime), nil
	}
	if err := mapError("stat", name, err); !errors.Is(err, cloud.ErrNotFound) {
		return models.FileEntry{}, err
	}

	children, err := p.store.listFlat(ctx, cloud.DirPrefix(p.prefix, name), 1)
	if err != nil {
		return models.FileEntry{}, mapError("stat", name, err)
	}
	if len(children) == 0 {
		return models.FileEntry{}, fmt.Errorf("stat %s: %w", name, cloud.ErrNotFound)
	}
	return dirEntry(path.Clean(name)), nil
}

func (p *Provider) MkdirAll(ctx context.Context, dir string) error {
	if dir == "/" || dir == "" {
		return nil
	}
	if _, err := p.store.properties(ctx, cloud.ObjectKey(p.prefix, dir)); err == nil {
		return fmt.Errorf("mkdir %s: %w", dir, cloud.ErrExists)
	}
	return mapError("mkdir", dir, p.store.uploadStream(ctx, cloud.DirPrefix(p.prefix, dir), strings.NewReader("")))
}

// Rename streams every blob under oldPath to its new name, then deletes the
// originals. It is not atomic.
func (p *Provider) Rename(ctx context.Context, oldPath, newPath string) error {
	if _, err := p.Stat(ctx, newPath); err == nil {
		return fmt.Errorf("rename %s: %w", newPath, cloud.ErrExists)
	} else if !errors.Is(err, cloud.ErrNotFound) {
		return err
	}
	src, err := p.Stat(ctx, oldPath)
	if err != nil {
		return err
	}

	if !src.IsDir {
		oldName := cloud.ObjectKey(p.prefix, oldPath)
		if err := p.copy(ctx, oldName, cloud.ObjectKey(p.prefix, newPath)); err != nil {
			return mapError("rename", oldPath, err)
		}
		return mapError("rename", oldPath, p.store.remove(ctx, oldName))
	}

	oldPrefix := cloud.DirPrefix(p.prefix, oldPath)
	newPrefix := cloud.DirPrefix(p.prefix, newPath)
	blobs, err := p.store.listFlat(ctx, oldPrefix, 0)
	if err != nil {
		return mapError("rename", oldPath, err)
	}
	for _, b := range blobs {
		if err := p.copy(ctx, b.name, newPrefix+strings.TrimPrefix(b.name, oldPrefix)); err != nil {
			return mapError("rename", oldPath, err)
		}
	}
	for _, b := range blobs {
		if err := p.store.remove(ctx, b.name); err != nil {
			return mapError("rename", oldPath, err)
		}
	}
	return nil
}

func (p *Provider) RemoveAll(ctx context.Context, name string) error {
	entry, err := p.Stat(ctx, name)
	if err != nil {
		return err
	}
	if !entry.IsDir {
		return mapError("delete", name, p.store.remove(ctx, cloud.ObjectKey(p.prefix, name)))
	}
	blobs, err := p.store.listFlat(ctx, cloud.DirPrefix(p.prefix, name), 0)
	if err != nil {
		return mapError("delete", name, err)
	}
	for _, b := range blobs {
		if err := p.store.remove(ctx, b.name); err != nil {
			return mapError("delete", name, err)
		}
	}
	return nil
}

func (p *Provider) Download(ctx context.Context, name, localPath string) error {
	body, err := p.store.open(ctx, cloud.ObjectKey(p.prefix, name))
	if err != nil {
		return mapError("download", name, err)
	}
	defer body.Close()

	return cloud.WriteLocalFile(ctx, localPath, body)
}

func (p *Provider) Upload(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	return mapError("upload", name, p.store.uploadFile(ctx, cloud.ObjectKey(p.prefix, name), f))
}

func (p *Provider) Close() error {
	return nil
}

func (p *Provider) copy(ctx context.Context, srcName, dstName string) error {
	body, err := p.store.open(ctx, srcName)
	if err != nil {
		return err
	}
	defer body.Close()
	return p.store.uploadStream(ctx, dstName, body)
}

func dirEntry(remote string) models.FileEntry {
	return models.FileEntry{
		Name:        path.Base(remote),
		Path:        remote,
		IsDir:       true,
		Permissions: "drwxr-xr-x",
	}
}

func fileEntry(remote string, size int64, modTime time.Time) models.FileEntry {
	return models.FileEntry{
		Name:        path.Base(remote),
		Path:        remote,
		Size:        size,
		ModTime:     modTime,
		Permissions: "-rw-r--r--",
	}
}

// mapError translates Azure storage errors into the cloud sentinels.
func mapError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cloud.ErrNotFound) || errors.Is(err, cloud.ErrPermission) {
		return err
	}

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return fmt.Errorf("%s %s: %w", op, name, cloud.ErrNotFound)
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		return fmt.Errorf("%s %s: %w", op, name, cloud.ErrPermission)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case nethttp.StatusNotFound:
			return fmt.Errorf("%s %s: %w", op, name, cloud.ErrNotFound)
		case nethttp.StatusForbidden:
			return fmt.Errorf("%s %s: %w", op, name, cloud.ErrPermission)
		}
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}

var _ cloud.RemoteFS = (*Provider)(nil)
