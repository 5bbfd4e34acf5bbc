package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/traho/internal/common"
	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
)

// Service implements OrderService over badger-backed order storage plus
// the filesystem stores for uploads and archives
type Service struct {
	storage  interfaces.OrderStorage
	uploads  interfaces.UploadStorage
	archives interfaces.ArchiveStorage
	logger   arbor.ILogger
}

// NewService creates a new order service
func NewService(storage interfaces.OrderStorage, uploads interfaces.UploadStorage, archives interfaces.ArchiveStorage, logger arbor.ILogger) interfaces.OrderService {
	return &Service{
		storage:  storage,
		uploads:  uploads,
		archives: archives,
		logger:   logger,
	}
}

// CreateFromUpload parses the uploaded spreadsheet and stores a new idle order
func (s *Service) CreateFromUpload(ctx context.Context, fileName string, data []byte) (*models.Order, error) {
	if !strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		return nil, fmt.Errorf("unsupported file type %q, expected .xlsx", fileName)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}

	items, err := ParseWorkbook(data)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no invoice rows found in %q", fileName)
	}

	order := models.NewOrder(common.NewOrderID(), fileName, items)

	path, err := s.uploads.Save(order.ID, fileName, data)
	if err != nil {
		return nil, err
	}
	order.UploadPath = path

	if err := s.storage.Store(ctx, order); err != nil {
		// Best effort cleanup, the order record is the source of truth
		s.uploads.Delete(order.ID)
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Str("file", fileName).
		Int("invoices", len(items)).
		Msg("Order created from upload")

	return order, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	return s.storage.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.Order, error) {
	return s.storage.List(ctx)
}

// Delete removes the order record plus its stored upload and archive
func (s *Service) Delete(ctx context.Context, id string) error {
	order, err := s.storage.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.Status.IsActive() {
		return fmt.Errorf("order %s has an active run, stop it first", id)
	}

	if err := s.storage.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.uploads.Delete(id); err != nil {
		s.logger.Warn().Err(err).Str("order_id", id).Msg("Failed to delete stored upload")
	}
	if err := s.archives.Delete(id); err != nil {
		s.logger.Warn().Err(err).Str("order_id", id).Msg("Failed to delete stored archive")
	}

	s.logger.Info().Str("order_id", id).Msg("Order deleted")
	return nil
}

// PeriodCutoff resolves a report period to its start time. An empty
// period returns the zero time, which windows nothing out.
func PeriodCutoff(period string) (time.Time, error) {
	now := time.Now()
	switch strings.ToLower(period) {
	case "":
		return time.Time{}, nil
	case "daily":
		return now.AddDate(0, 0, -1), nil
	case "weekly":
		return now.AddDate(0, 0, -7), nil
	case "monthly":
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown period %q, expected daily, weekly or monthly", period)
	}
}

// Stats aggregates run and invoice outcomes across orders uploaded
// within the period
func (s *Service) Stats(ctx context.Context, period string) (*models.OrderStats, error) {
	cutoff, err := PeriodCutoff(period)
	if err != nil {
		return nil, err
	}

	all, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	if !cutoff.IsZero() {
		inPeriod := make([]*models.Order, 0, len(all))
		for _, order := range all {
			if order.UploadedAt.After(cutoff) {
				inPeriod = append(inPeriod, order)
			}
		}
		all = inPeriod
	}

	stats := &models.OrderStats{TotalOrders: len(all)}
	for _, order := range all {
		counts := order.Counts()
		stats.TotalInvoices += counts.Total
		stats.InvoicesDone += counts.Completed
		stats.InvoicesFailed += counts.Failed

		switch {
		case order.Status == models.RunStatusCompleted:
			stats.CompletedRuns++
		case order.Status == models.RunStatusFailed:
			stats.FailedRuns++
		case order.Status.IsActive():
			stats.ActiveRuns++
		}
	}

	attempted := stats.InvoicesDone + stats.InvoicesFailed
	if attempted > 0 {
		stats.SuccessRatePct = float64(stats.InvoicesDone) / float64(attempted) * 100
	}

	return stats, nil
}
