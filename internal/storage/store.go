package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Recording describes a stored file for the listing endpoint.
type Recording struct {
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Created   time.Time `json:"created"`
}

// Store manages the flat recordings directory. It is append-only: recordings
// are never mutated or deleted by the service.
type Store struct {
	dir string

	// now is swappable for deterministic filenames in tests
	now func() time.Time
}

// NewStore creates the recordings directory if needed and returns a Store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory %s: %w", dir, err)
	}

	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the recordings directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes one payload under a wall-clock timestamped name and returns the
// generated filename. Two uploads within the same second collide on the same
// name; the second write wins. The data is staged in a temp file and renamed
// into place so readers never observe a partial recording.
func (s *Store) Save(data []byte) (string, error) {
	filename := fmt.Sprintf("recording_%s.pcm", s.now().Format("20060102_150405"))
	path := filepath.Join(s.dir, filename)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write recording data: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finalize recording %s: %w", filename, err)
	}

	return filename, nil
}

// List returns all .pcm recordings sorted by modification time, newest first.
func (s *Store) List() ([]Recording, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory %s: %w", s.dir, err)
	}

	recordings := make([]Recording, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pcm" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// File disappeared between ReadDir and Stat; skip it.
			continue
		}

		recordings = append(recordings, Recording{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			Created:   info.ModTime(),
		})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Created.After(recordings[j].Created)
	})

	return recordings, nil
}

// Count returns the number of stored recordings.
func (s *Store) Count() (int, error) {
	recordings, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(recordings), nil
}
