package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
	"github.com/ternarybob/traho/internal/storage/files"
)

// memoryOrderStorage is a map-backed OrderStorage for service tests
type memoryOrderStorage struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func newMemoryOrderStorage() *memoryOrderStorage {
	return &memoryOrderStorage{orders: make(map[string]models.Order)}
}

func (m *memoryOrderStorage) Store(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = *order
	return nil
}

func (m *memoryOrderStorage) Get(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", id)
	}
	return &order, nil
}

func (m *memoryOrderStorage) List(ctx context.Context) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.Order, 0, len(m.orders))
	for id := range m.orders {
		order := m.orders[id]
		result = append(result, &order)
	}
	return result, nil
}

func (m *memoryOrderStorage) ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.Order, error) {
	all, _ := m.List(ctx)
	var result []*models.Order
	for _, o := range all {
		if o.Status == status {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *memoryOrderStorage) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("order not found: %s", id)
	}
	delete(m.orders, id)
	return nil
}

func (m *memoryOrderStorage) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), nil
}

func (m *memoryOrderStorage) UpdateStatus(ctx context.Context, id string, status models.RunStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order not found: %s", id)
	}
	order.Status = status
	order.Message = message
	m.orders[id] = order
	return nil
}

func (m *memoryOrderStorage) Heartbeat(ctx context.Context, id string) error { return nil }

func (m *memoryOrderStorage) Refresh(ctx context.Context, order *models.Order) (*models.Order, error) {
	return m.Get(ctx, order.ID)
}

var _ interfaces.OrderStorage = (*memoryOrderStorage)(nil)

func newTestService(t *testing.T) (interfaces.OrderService, *memoryOrderStorage) {
	t.Helper()
	logger := arbor.NewLogger()
	uploads, err := files.NewUploadStore(t.TempDir(), logger)
	require.NoError(t, err)
	archives, err := files.NewArchiveStore(t.TempDir(), logger)
	require.NoError(t, err)
	storage := newMemoryOrderStorage()
	return NewService(storage, uploads, archives, logger), storage
}

func TestCreateFromUpload(t *testing.T) {
	svc, _ := newTestService(t)

	data := buildWorkbook(t, [][]interface{}{
		{"NO", "CUSTOMER", "INVOICE NUMBER"},
		{1, "Acme", "INV1001"},
		{2, "Acme", "INV1002"},
	})

	order, err := svc.CreateFromUpload(context.Background(), "march.xlsx", data)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.RunStatusIdle, order.Status)
	assert.Len(t, order.Items, 2)
	assert.NotEmpty(t, order.UploadPath)
}

func TestCreateFromUploadRejectsWrongExtension(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateFromUpload(context.Background(), "march.csv", []byte("a,b"))
	assert.Error(t, err)
}

func TestCreateFromUploadRejectsNoInvoices(t *testing.T) {
	svc, _ := newTestService(t)

	data := buildWorkbook(t, [][]interface{}{
		{"NO", "CUSTOMER", "INVOICE NUMBER"},
		{1, "Acme", "INV-0001"}, // only a hyphenated row
	})

	_, err := svc.CreateFromUpload(context.Background(), "march.xlsx", data)
	assert.Error(t, err)
}

func TestDeleteRefusesActiveRun(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	order := models.NewOrder("ord-1", "a.xlsx", nil)
	order.Status = models.RunStatusRunning
	require.NoError(t, storage.Store(ctx, order))

	err := svc.Delete(ctx, "ord-1")
	assert.Error(t, err)

	require.NoError(t, storage.UpdateStatus(ctx, "ord-1", models.RunStatusCompleted, ""))
	assert.NoError(t, svc.Delete(ctx, "ord-1"))
}

func TestStats(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	completed := models.NewOrder("ord-1", "a.xlsx", []models.LineItem{
		{InvoiceNumber: "INV1", Status: models.ItemStatusCompleted},
		{InvoiceNumber: "INV2", Status: models.ItemStatusCompleted},
		{InvoiceNumber: "INV3", Status: models.ItemStatusFailed},
	})
	completed.Status = models.RunStatusCompleted
	require.NoError(t, storage.Store(ctx, completed))

	idle := models.NewOrder("ord-2", "b.xlsx", []models.LineItem{
		{InvoiceNumber: "INV4"},
	})
	require.NoError(t, storage.Store(ctx, idle))

	stats, err := svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 4, stats.TotalInvoices)
	assert.Equal(t, 1, stats.CompletedRuns)
	assert.Equal(t, 2, stats.InvoicesDone)
	assert.Equal(t, 1, stats.InvoicesFailed)
	assert.InDelta(t, 66.67, stats.SuccessRatePct, 0.01)
}

func TestStatsPeriodFilter(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	recent := models.NewOrder("ord-1", "a.xlsx", []models.LineItem{
		{InvoiceNumber: "INV1", Status: models.ItemStatusCompleted},
	})
	require.NoError(t, storage.Store(ctx, recent))

	old := models.NewOrder("ord-2", "b.xlsx", []models.LineItem{
		{InvoiceNumber: "INV2", Status: models.ItemStatusCompleted},
	})
	old.UploadedAt = time.Now().AddDate(0, 0, -10)
	require.NoError(t, storage.Store(ctx, old))

	stats, err := svc.Stats(ctx, "weekly")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalOrders)
	assert.Equal(t, 1, stats.TotalInvoices)

	_, err = svc.Stats(ctx, "hourly")
	assert.Error(t, err)
}
