package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrOrderNotFound is returned for lookups of unknown order IDs
var ErrOrderNotFound = fmt.Errorf("order not found")

// OrderStorage implements the OrderStorage interface for Badger
type OrderStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewOrderStorage creates a new OrderStorage instance
func NewOrderStorage(db *BadgerDB, logger arbor.ILogger) interfaces.OrderStorage {
	return &OrderStorage{
		db:     db,
		logger: logger,
	}
}

func (s *OrderStorage) Store(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		return fmt.Errorf("order ID is required")
	}

	if err := s.db.Store().Upsert(order.ID, order); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (s *OrderStorage) Get(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := s.db.Store().Get(id, &order); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (s *OrderStorage) List(ctx context.Context) ([]*models.Order, error) {
	var orders []models.Order
	if err := s.db.Store().Find(&orders, badgerhold.Where("ID").Ne("").SortBy("UploadedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	result := make([]*models.Order, len(orders))
	for i := range orders {
		result[i] = &orders[i]
	}
	return result, nil
}

func (s *OrderStorage) ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.Order, error) {
	var orders []models.Order
	if err := s.db.Store().Find(&orders, badgerhold.Where("Status").Eq(status).SortBy("UploadedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list orders by status: %w", err)
	}

	result := make([]*models.Order, len(orders))
	for i := range orders {
		result[i] = &orders[i]
	}
	return result, nil
}

func (s *OrderStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Order{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

func (s *OrderStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Order{}, badgerhold.Where("ID").Ne(""))
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return int(count), nil
}

// UpdateStatus reads the current record and writes only the run-state fields.
// Item progress persisted by a concurrent engine write is preserved.
func (s *OrderStorage) UpdateStatus(ctx context.Context, id string, status models.RunStatus, message string) error {
	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	order.Status = status
	order.Message = message

	now := time.Now()
	switch status {
	case models.RunStatusRunning:
		order.StartedAt = &now
		order.FinishedAt = nil
		order.LastHeartbeat = now
	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
		order.FinishedAt = &now
	}

	return s.Store(ctx, order)
}

func (s *OrderStorage) Heartbeat(ctx context.Context, id string) error {
	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	order.LastHeartbeat = time.Now()
	return s.Store(ctx, order)
}

func (s *OrderStorage) Refresh(ctx context.Context, order *models.Order) (*models.Order, error) {
	return s.Get(ctx, order.ID)
}
