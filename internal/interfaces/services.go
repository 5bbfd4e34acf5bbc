package interfaces

import (
	"context"

	"github.com/ternarybob/traho/internal/models"
)

// OrderService - interface for order lifecycle management
type OrderService interface {
	// CreateFromUpload parses an uploaded spreadsheet and stores a new order
	CreateFromUpload(ctx context.Context, fileName string, data []byte) (*models.Order, error)

	// Get returns a single order
	Get(ctx context.Context, id string) (*models.Order, error)

	// List returns all orders, newest first
	List(ctx context.Context) ([]*models.Order, error)

	// Delete removes an order plus its stored upload and archive
	Delete(ctx context.Context, id string) error

	// Stats aggregates outcomes across orders uploaded within the period
	// (daily, weekly or monthly); an empty period covers everything
	Stats(ctx context.Context, period string) (*models.OrderStats, error)
}

// ExportService - interface for running browser export sessions
type ExportService interface {
	// Start launches an export run for the order. Returns an error when the
	// order is not in a startable state or another run holds the order.
	Start(ctx context.Context, orderID string, cfg models.RunConfig) error

	// Stop requests cancellation of an active run. The request is recorded
	// immediately; the engine honors it at its next poll point.
	Stop(ctx context.Context, orderID string) error

	// IsRunning reports whether this process currently owns a run for the order
	IsRunning(orderID string) bool
}
