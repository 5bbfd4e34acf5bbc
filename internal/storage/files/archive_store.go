package files

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/traho/internal/interfaces"
)

// ErrArchiveNotFound is returned when an order has no stored archive
var ErrArchiveNotFound = fmt.Errorf("archive not found")

// ArchiveStore persists finished zip archives, one per order
type ArchiveStore struct {
	root   string
	logger arbor.ILogger
}

// NewArchiveStore creates an archive store rooted at dir
func NewArchiveStore(dir string, logger arbor.ILogger) (interfaces.ArchiveStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archives directory: %w", err)
	}
	return &ArchiveStore{root: dir, logger: logger}, nil
}

func (s *ArchiveStore) Save(orderID, archiveName string, data []byte) (string, error) {
	dir := filepath.Join(s.root, orderID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	// One archive per order, a re-run replaces the previous one
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}

	path := filepath.Join(dir, filepath.Base(archiveName))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	s.logger.Debug().Str("order_id", orderID).Str("path", path).Msg("Archive stored")
	return path, nil
}

// archivePath locates the order's single archive file
func (s *ArchiveStore) archivePath(orderID string) (string, error) {
	dir := filepath.Join(s.root, orderID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: order %s", ErrArchiveNotFound, orderID)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".zip") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: order %s", ErrArchiveNotFound, orderID)
}

func (s *ArchiveStore) Open(orderID string) (string, []byte, error) {
	path, err := s.archivePath(orderID)
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return filepath.Base(path), data, nil
}

func (s *ArchiveStore) ListEntries(orderID string) ([]string, error) {
	path, err := s.archivePath(orderID)
	if err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// ReadEntry returns the first archive member whose name starts with namePrefix.
// Exported files are named after their invoice number so the prefix is the
// invoice number for preview lookups.
func (s *ArchiveStore) ReadEntry(orderID, namePrefix string) (string, []byte, error) {
	path, err := s.archivePath(orderID)
	if err != nil {
		return "", nil, err
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if !strings.HasPrefix(f.Name, namePrefix) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", nil, fmt.Errorf("failed to open archive entry: %w", err)
		}
		var buf bytes.Buffer
		_, err = io.Copy(&buf, rc)
		rc.Close()
		if err != nil {
			return "", nil, fmt.Errorf("failed to read archive entry: %w", err)
		}
		return f.Name, buf.Bytes(), nil
	}

	return "", nil, fmt.Errorf("no archive entry matching %q", namePrefix)
}

func (s *ArchiveStore) Delete(orderID string) error {
	dir := filepath.Join(s.root, orderID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete archive directory: %w", err)
	}
	return nil
}
