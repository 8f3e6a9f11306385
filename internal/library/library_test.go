package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func seedFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return path
}

func TestNextPicksLexicographicallyFirstImage(t *testing.T) {
	dir := t.TempDir()
	lib, err := New(dir, filepath.Join(dir, "posted"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	seedFile(t, dir, "b-second.png")
	seedFile(t, dir, "a-first.jpg")
	seedFile(t, dir, "notes.txt") // non-image files are never selected

	next, err := lib.Next(context.Background())
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if filepath.Base(next) != "a-first.jpg" {
		t.Fatalf("expected a-first.jpg, got %s", filepath.Base(next))
	}

	pending, err := lib.Pending()
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if pending != 2 {
		t.Fatalf("expected 2 pending images, got %d", pending)
	}
}

func TestNextOnEmptyLibrary(t *testing.T) {
	dir := t.TempDir()
	lib, err := New(dir, filepath.Join(dir, "posted"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if _, err := lib.Next(context.Background()); !errors.Is(err, ErrLibraryEmpty) {
		t.Fatalf("expected ErrLibraryEmpty, got %v", err)
	}
}

func TestArchiveRotatesOutOfQueue(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "posted")
	lib, err := New(dir, archive)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	path := seedFile(t, dir, "sunset.webp")
	moved, err := lib.Archive(path)
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if filepath.Dir(moved) != archive {
		t.Fatalf("expected archive under %s, got %s", archive, moved)
	}

	if _, err := lib.Next(context.Background()); !errors.Is(err, ErrLibraryEmpty) {
		t.Fatalf("expected empty queue after archive, got %v", err)
	}

	// Same name again must not clobber the archived copy.
	path = seedFile(t, dir, "sunset.webp")
	second, err := lib.Archive(path)
	if err != nil {
		t.Fatalf("second Archive returned error: %v", err)
	}
	if second == moved {
		t.Fatalf("expected distinct archive path, both were %s", second)
	}
}
