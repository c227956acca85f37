package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	info, err := os.Stat(store.Dir())
	if err != nil {
		t.Fatalf("Recordings directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("Recordings path is not a directory")
	}
}

func TestSave(t *testing.T) {
	store := newTestStore(t)
	store.now = func() time.Time {
		return time.Date(2026, 8, 29, 14, 30, 5, 0, time.UTC)
	}

	data := []byte("pcm audio bytes")
	filename, err := store.Save(data)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if filename != "recording_20260829_143005.pcm" {
		t.Errorf("Unexpected filename: %s", filename)
	}

	saved, err := os.ReadFile(filepath.Join(store.Dir(), filename))
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if string(saved) != string(data) {
		t.Errorf("Saved data mismatch: got %q", saved)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Save([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected exactly 1 file after save, got %d", len(entries))
	}
}

func TestListSortedNewestFirst(t *testing.T) {
	store := newTestStore(t)

	older := filepath.Join(store.Dir(), "recording_20260829_100000.pcm")
	newer := filepath.Join(store.Dir(), "recording_20260829_110000.pcm")

	if err := os.WriteFile(older, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(newer, make([]byte, 200), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, base, base); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	if err := os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	recordings, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(recordings) != 2 {
		t.Fatalf("Expected 2 recordings, got %d", len(recordings))
	}

	if recordings[0].Filename != "recording_20260829_110000.pcm" {
		t.Errorf("Expected newest recording first, got %s", recordings[0].Filename)
	}
	if recordings[0].SizeBytes != 200 {
		t.Errorf("Expected size 200, got %d", recordings[0].SizeBytes)
	}
	if recordings[1].Filename != "recording_20260829_100000.pcm" {
		t.Errorf("Expected oldest recording last, got %s", recordings[1].Filename)
	}
}

func TestListIgnoresNonPCMFiles(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(store.Dir(), "subdir"), 0o755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}
	if _, err := store.Save([]byte{0x00}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	recordings, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(recordings) != 1 {
		t.Errorf("Expected 1 recording, got %d", len(recordings))
	}
}

func TestListEmptyDirectory(t *testing.T) {
	store := newTestStore(t)

	recordings, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recordings) != 0 {
		t.Errorf("Expected no recordings, got %d", len(recordings))
	}
}

func TestCount(t *testing.T) {
	store := newTestStore(t)

	seconds := 0
	store.now = func() time.Time {
		seconds++
		return time.Date(2026, 8, 29, 14, 30, seconds, 0, time.UTC)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Save([]byte{byte(i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 recordings, got %d", count)
	}
}
