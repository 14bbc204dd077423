// Package storage mirrors relocated archives to an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ObjectStore writes single objects and names their locations.
type ObjectStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// Location returns the URI a prefix (or object) is addressed by.
	Location(path string) string
}

// Mirror uploads every file below a local archive directory.
type Mirror struct {
	objects ObjectStore
	logger  *zap.Logger
}

// NewMirror wraps an object store.
func NewMirror(objects ObjectStore, logger *zap.Logger) (*Mirror, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{objects: objects, logger: logger.Named("mirror")}, nil
}

// Upload copies localPath (file or directory) to <prefix>/<base(localPath)>/... and returns the
// location of the uploaded tree.
func (m *Mirror) Upload(ctx context.Context, localPath string, prefix string) (string, error) {
	root := objectPath(strings.Trim(prefix, "/"), filepath.Base(localPath))
	var uploaded int
	err := filepath.WalkDir(localPath, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		name := root
		if rel != "." {
			name = objectPath(root, filepath.ToSlash(rel))
		}
		if err := m.put(ctx, p, name); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("mirror %s: %w", localPath, err)
	}
	m.logger.Debug("archive mirrored", zap.String("path", localPath), zap.String("prefix", root), zap.Int("objects", uploaded))
	return m.objects.Location(root), nil
}

func (m *Mirror) put(ctx context.Context, localFile, name string) error {
	f, err := os.Open(localFile) // #nosec G304 -- walking our own archive tree.
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := m.objects.PutObject(ctx, name, mime.TypeByExtension(filepath.Ext(localFile)), f); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func objectPath(elem ...string) string {
	var parts []string
	for _, e := range elem {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return path.Join(parts...)
}
