// Package library manages the local directory of images waiting to be
// posted. Selection is deterministic: the lexicographically first image
// wins, so queued files can be ordered by naming them.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrLibraryEmpty means no postable image is waiting in the queue dir.
var ErrLibraryEmpty = errors.New("library: no queued images")

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

type Library struct {
	dir        string
	archiveDir string
}

func New(dir, archiveDir string) (*Library, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("library dir is required")
	}
	if strings.TrimSpace(archiveDir) == "" {
		return nil, errors.New("archive dir is required")
	}
	return &Library{dir: dir, archiveDir: archiveDir}, nil
}

// Next returns the path of the next queued image.
func (l *Library) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	names, err := l.queuedNames()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrLibraryEmpty
	}
	return filepath.Join(l.dir, names[0]), nil
}

// Pending reports how many images are waiting.
func (l *Library) Pending() (int, error) {
	names, err := l.queuedNames()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Read loads a queued image into memory.
func (l *Library) Read(ctx context.Context, path string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queued image %s: %w", path, err)
	}
	return data, nil
}

// Archive rotates a published image out of the queue by moving it into the
// archive directory, and returns its new path. An existing archived file
// with the same name is never overwritten.
func (l *Library) Archive(path string) (string, error) {
	if err := os.MkdirAll(l.archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	target := filepath.Join(l.archiveDir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		base := strings.TrimSuffix(filepath.Base(path), ext)
		for i := 1; ; i++ {
			candidate := filepath.Join(l.archiveDir, fmt.Sprintf("%s.%d%s", base, i, ext))
			if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
				target = candidate
				break
			}
		}
	}

	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("archive image %s: %w", path, err)
	}
	return target, nil
}

func (l *Library) queuedNames() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read library dir %s: %w", l.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := imageExtensions[ext]; !ok {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
