package controller

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

// relocate moves src into the directory dest, creating dest first, and returns the new path.
// An existing entry with the same name at the destination is an error.
func relocate(src, dest string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("%w: stat %s: %w", archive.ErrRelocation, src, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", archive.ErrRelocation, dest, err)
	}
	target := filepath.Join(dest, filepath.Base(src))
	if _, err := os.Lstat(target); err == nil {
		return "", fmt.Errorf("%w: %s already exists", archive.ErrRelocation, target)
	}
	if err := os.Rename(src, target); err != nil {
		return "", fmt.Errorf("%w: move %s to %s: %w", archive.ErrRelocation, src, target, err)
	}
	return target, nil
}
