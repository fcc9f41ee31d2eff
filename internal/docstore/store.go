// Package docstore is the Document Store boundary: byte blobs keyed by a
// logical path. The core never inspects the bytes it stores.
package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists a document and returns a stable reference to it.
type Store interface {
	Put(ctx context.Context, logicalPath string, data []byte) (string, error)
}

// FS stores documents under a root directory, one file per logical path.
type FS struct {
	root string
}

func NewFS(root string) *FS {
	return &FS{root: root}
}

func (f *FS) Put(ctx context.Context, logicalPath string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := filepath.Clean("/" + logicalPath)
	if strings.Contains(logicalPath, "..") {
		return "", fmt.Errorf("invalid logical path %q", logicalPath)
	}
	dest := filepath.Join(f.root, clean)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return dest, nil
}
