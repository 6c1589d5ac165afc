// Package storage persists binary artifacts (trained models and rendered
// reports) behind a key/value BlobStore. Keys are slash-separated paths such
// as "pdfs/summary_<id>.pdf".
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"sitescore/internal/types"
)

// BlobInfo describes one stored object.
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// BlobStore is the artifact sink shared by the model cache and the report
// orchestrator.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrCodeNotFoundArtifact when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// List returns every object whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// NotFound returns the AppError for a missing key.
func NotFound(key string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundArtifact,
		"artifact not found", nil, map[string]any{"key": key})
}

func storageError(op, key string, err error) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeInternalStorage,
		fmt.Sprintf("storage %s failed", op), err, map[string]any{"key": key})
}

// ValidateKey rejects keys that are empty, absolute or escape the store root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
			"invalid artifact key", nil, map[string]any{"key": key})
	}
	if clean := path.Clean(key); clean != key || clean == ".." || strings.HasPrefix(clean, "../") {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
			"invalid artifact key", nil, map[string]any{"key": key})
	}
	return nil
}
