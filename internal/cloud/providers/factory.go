// Package providers creates the remote filesystem selected by the server
// configuration.
package providers

import (
	"context"
	"fmt"

	"github.com/rescale/dualpane/internal/cloud"
	"github.com/rescale/dualpane/internal/cloud/providers/azure"
	"github.com/rescale/dualpane/internal/cloud/providers/s3"
	"github.com/rescale/dualpane/internal/cloud/providers/sftp"
	"github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/http"
)

// New connects to the storage named by cfg.Server.Storage.
// Object-store providers share the proxy-aware HTTP client.
func New(ctx context.Context, cfg *config.Config) (cloud.RemoteFS, error) {
	switch cfg.Server.Storage {
	case config.StorageSFTP:
		return sftp.Dial(ctx, cfg.SFTP)
	case config.StorageS3:
		httpClient, err := http.ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		return s3.New(ctx, cfg.S3, httpClient)
	case config.StorageAzure:
		httpClient, err := http.ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		return azure.New(cfg.Azure, httpClient)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Server.Storage)
	}
}
