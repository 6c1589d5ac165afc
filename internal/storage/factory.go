package storage

import (
	"context"
	"fmt"

	"sitescore/internal/config"
)

// New builds the BlobStore selected by STORAGE_BACKEND.
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewFileStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:      cfg.Bucket,
			Region:      cfg.Region,
			EndpointURL: cfg.EndpointURL,
		})
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
