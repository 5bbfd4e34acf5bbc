package interfaces

import (
	"context"

	"github.com/ternarybob/traho/internal/models"
)

// OrderStorage - interface for order persistence
type OrderStorage interface {
	// CRUD operations
	Store(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context) ([]*models.Order, error)
	ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.Order, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	// Run-state operations. UpdateStatus writes only the status and message
	// fields so a stop request does not clobber item progress written by
	// the engine between the caller's read and write.
	UpdateStatus(ctx context.Context, id string, status models.RunStatus, message string) error
	Heartbeat(ctx context.Context, id string) error

	// Refresh re-reads the order, used by the engine to observe stop
	// requests made from another request context.
	Refresh(ctx context.Context, order *models.Order) (*models.Order, error)
}

// ArchiveStorage - interface for finished zip archives and their contents
type ArchiveStorage interface {
	// Save persists archive bytes under the order and returns the stored path
	Save(orderID, archiveName string, data []byte) (string, error)

	// Open returns the archive bytes for download
	Open(orderID string) (string, []byte, error)

	// ListEntries returns the file names inside the order's archive
	ListEntries(orderID string) ([]string, error)

	// ReadEntry returns a single file from inside the archive by name prefix
	ReadEntry(orderID, namePrefix string) (string, []byte, error)

	// Delete removes the order's archive if present
	Delete(orderID string) error
}

// UploadStorage - interface for uploaded spreadsheet files
type UploadStorage interface {
	// Save persists upload bytes and returns the stored path
	Save(orderID, fileName string, data []byte) (string, error)

	// Delete removes the order's stored upload
	Delete(orderID string) error
}
