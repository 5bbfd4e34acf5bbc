// -----------------------------------------------------------------------
// File Stores - Filesystem persistence for uploads and archives
// -----------------------------------------------------------------------

package files

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/traho/internal/interfaces"
)

// UploadStore persists uploaded spreadsheets under a per-order directory
type UploadStore struct {
	root   string
	logger arbor.ILogger
}

// NewUploadStore creates an upload store rooted at dir
func NewUploadStore(dir string, logger arbor.ILogger) (interfaces.UploadStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &UploadStore{root: dir, logger: logger}, nil
}

func (s *UploadStore) Save(orderID, fileName string, data []byte) (string, error) {
	dir := filepath.Join(s.root, orderID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Uploads arrive from multipart forms, strip any path component
	path := filepath.Join(dir, filepath.Base(fileName))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	s.logger.Debug().Str("order_id", orderID).Str("path", path).Msg("Upload stored")
	return path, nil
}

func (s *UploadStore) Delete(orderID string) error {
	dir := filepath.Join(s.root, orderID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete upload directory: %w", err)
	}
	return nil
}
