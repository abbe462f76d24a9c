// Package checkpoint persists keyed rows in an append-only CSV file so that
// expensive per-key lookups (geocoding, translation) survive restarts.
// The first column of each row is its key; a later row for the same key
// replaces an earlier one.
package checkpoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrHeaderMismatch is returned by Open when an existing file was written
// with a different header.
var ErrHeaderMismatch = errors.New("checkpoint header mismatch")

// Store is an append-only CSV checkpoint. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	header []string
	file   *os.File
	w      *csv.Writer
	rows   map[string][]string
}

// Open loads the checkpoint at path, creating it with header when missing.
func Open(path string, header []string) (*Store, error) {
	if len(header) == 0 {
		return nil, errors.New("checkpoint header is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	s := &Store{path: path, header: slices.Clone(header), rows: make(map[string][]string)}

	existing, err := os.Open(path)
	switch {
	case err == nil:
		err = s.load(existing)
		_ = existing.Close()
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	s.file = f
	s.w = csv.NewWriter(f)

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat checkpoint %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := s.write(s.header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(s.header)

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}
	if !slices.Equal(head, s.header) {
		return fmt.Errorf("%w: %s has %v, want %v", ErrHeaderMismatch, s.path, head, s.header)
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read checkpoint %s: %w", s.path, err)
		}
		s.rows[row[0]] = row
	}
}

// Get returns the latest row stored for key.
func (s *Store) Get(key string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	return slices.Clone(row), ok
}

// Append writes row to disk and indexes it by its first column.
func (s *Store) Append(row []string) error {
	if len(row) != len(s.header) {
		return fmt.Errorf("checkpoint row has %d fields, want %d", len(row), len(s.header))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("checkpoint is closed")
	}
	if err := s.write(row); err != nil {
		return err
	}
	s.rows[row[0]] = slices.Clone(row)
	return nil
}

func (s *Store) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", s.path, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush checkpoint %s: %w", s.path, err)
	}
	return nil
}

// Len returns the number of distinct keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
