package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
	"github.com/ternarybob/traho/internal/storage/files"
)

// fakeOrderService returns canned orders for handler tests
type fakeOrderService struct {
	orders    map[string]*models.Order
	uploadErr error
}

func (f *fakeOrderService) CreateFromUpload(ctx context.Context, fileName string, data []byte) (*models.Order, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	order := models.NewOrder("ord-new", fileName, []models.LineItem{{No: 1, InvoiceNumber: "INV1001"}})
	return order, nil
}

func (f *fakeOrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	if order, ok := f.orders[id]; ok {
		return order, nil
	}
	return nil, fmt.Errorf("order not found: %s", id)
}

func (f *fakeOrderService) List(ctx context.Context) ([]*models.Order, error) {
	var result []*models.Order
	for _, order := range f.orders {
		result = append(result, order)
	}
	return result, nil
}

func (f *fakeOrderService) Delete(ctx context.Context, id string) error {
	if _, ok := f.orders[id]; !ok {
		return fmt.Errorf("order not found: %s", id)
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeOrderService) Stats(ctx context.Context, period string) (*models.OrderStats, error) {
	return &models.OrderStats{TotalOrders: len(f.orders)}, nil
}

// fakeExportService records run control calls
type fakeExportService struct {
	started  []string
	stopped  []string
	startErr error
}

func (f *fakeExportService) Start(ctx context.Context, orderID string, cfg models.RunConfig) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, orderID)
	return nil
}

func (f *fakeExportService) Stop(ctx context.Context, orderID string) error {
	f.stopped = append(f.stopped, orderID)
	return nil
}

func (f *fakeExportService) IsRunning(orderID string) bool { return false }

var (
	_ interfaces.OrderService  = (*fakeOrderService)(nil)
	_ interfaces.ExportService = (*fakeExportService)(nil)
)

func newHandlerFixture(t *testing.T) (*OrderHandler, *fakeOrderService, *fakeExportService, interfaces.ArchiveStorage) {
	t.Helper()
	logger := arbor.NewLogger()

	archives, err := files.NewArchiveStore(t.TempDir(), logger)
	require.NoError(t, err)

	orders := &fakeOrderService{orders: map[string]*models.Order{
		"ord-1": models.NewOrder("ord-1", "march.xlsx", []models.LineItem{{No: 1, InvoiceNumber: "INV1001"}}),
	}}
	exporter := &fakeExportService{}

	return NewOrderHandler(orders, exporter, archives, logger), orders, exporter, archives
}

func TestUploadHandler(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "march.xlsx")
	require.NoError(t, err)
	part.Write([]byte("workbook bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/orders", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "march.xlsx", order.FileName)
}

func TestUploadHandlerMissingFile(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/orders", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHandlerPeriodValidation(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)

	req := httptest.NewRequest("GET", "/api/orders?period=hourly", nil)
	rec := httptest.NewRecorder()
	h.ListHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest("GET", "/api/orders?period=weekly", nil)
	rec = httptest.NewRecorder()
	h.ListHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunHandler(t *testing.T) {
	h, _, exporter, _ := newHandlerFixture(t)

	body := bytes.NewBufferString(`{"start_index": 2, "limit": 5}`)
	req := httptest.NewRequest("POST", "/api/orders/ord-1/run", body)
	rec := httptest.NewRecorder()

	h.RunHandler(rec, req, "ord-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ord-1"}, exporter.started)
}

func TestRunHandlerConflict(t *testing.T) {
	h, _, exporter, _ := newHandlerFixture(t)
	exporter.startErr = fmt.Errorf("order ord-1 already has an active run")

	req := httptest.NewRequest("POST", "/api/orders/ord-1/run", nil)
	rec := httptest.NewRecorder()

	h.RunHandler(rec, req, "ord-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStopHandler(t *testing.T) {
	h, _, exporter, _ := newHandlerFixture(t)

	req := httptest.NewRequest("POST", "/api/orders/ord-1/stop", nil)
	rec := httptest.NewRecorder()

	h.StopHandler(rec, req, "ord-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ord-1"}, exporter.stopped)
}

func TestArchiveHandler(t *testing.T) {
	h, _, _, archives := newHandlerFixture(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("INV1001.xlsx")
	require.NoError(t, err)
	w.Write([]byte("sheet"))
	require.NoError(t, zw.Close())

	_, err = archives.Save("ord-1", "march.zip", buf.Bytes())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/orders/ord-1/archive", nil)
	rec := httptest.NewRecorder()
	h.ArchiveHandler(rec, req, "ord-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "march.zip")
}

func TestArchiveHandlerNotFound(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)

	req := httptest.NewRequest("GET", "/api/orders/ord-1/archive", nil)
	rec := httptest.NewRecorder()
	h.ArchiveHandler(rec, req, "ord-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewHandler(t *testing.T) {
	h, _, _, archives := newHandlerFixture(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("INV1001.xlsx")
	require.NoError(t, err)
	w.Write([]byte("sheet"))
	require.NoError(t, zw.Close())

	_, err = archives.Save("ord-1", "march.zip", buf.Bytes())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/orders/ord-1/preview/INV1001", nil)
	rec := httptest.NewRecorder()
	h.PreviewHandler(rec, req, "ord-1", "INV1001")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Equal(t, "sheet", rec.Body.String())
}

func TestDeleteHandlerNotFound(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)

	req := httptest.NewRequest("DELETE", "/api/orders/missing", nil)
	rec := httptest.NewRecorder()
	h.DeleteHandler(rec, req, "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
