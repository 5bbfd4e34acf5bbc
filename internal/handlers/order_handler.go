// -----------------------------------------------------------------------
// Order Handler - Upload, CRUD, run control, and archive delivery
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
	"github.com/ternarybob/traho/internal/services/orders"
	"github.com/ternarybob/traho/internal/storage/files"
)

// maxUploadBytes caps spreadsheet uploads at 20 MB
const maxUploadBytes = 20 << 20

// OrderHandler serves the order API
type OrderHandler struct {
	orders   interfaces.OrderService
	exporter interfaces.ExportService
	archives interfaces.ArchiveStorage
	logger   arbor.ILogger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders interfaces.OrderService, exporter interfaces.ExportService, archives interfaces.ArchiveStorage, logger arbor.ILogger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		exporter: exporter,
		archives: archives,
		logger:   logger,
	}
}

// ListHandler handles GET /api/orders with an optional period filter
// (?period=daily|weekly|monthly)
func (h *OrderHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	list, err := h.orders.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list orders")
		WriteError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}

	if period := r.URL.Query().Get("period"); period != "" {
		cutoff, err := orders.PeriodCutoff(period)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		filtered := make([]*models.Order, 0, len(list))
		for _, order := range list {
			if order.UploadedAt.After(cutoff) {
				filtered = append(filtered, order)
			}
		}
		list = filtered
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": list,
		"count":  len(list),
	})
}

// UploadHandler handles POST /api/orders, a multipart form with a single
// "file" field carrying the invoice spreadsheet
func (h *OrderHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	order, err := h.orders.CreateFromUpload(r.Context(), filepath.Base(header.Filename), data)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, order)
}

// GetHandler handles GET /api/orders/{id}
func (h *OrderHandler) GetHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	order, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, order)
}

// DeleteHandler handles DELETE /api/orders/{id}
func (h *OrderHandler) DeleteHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	if err := h.orders.Delete(r.Context(), orderID); err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		WriteError(w, status, err.Error())
		return
	}
	WriteSuccess(w, "Order deleted")
}

// RunHandler handles POST /api/orders/{id}/run. The optional JSON body
// carries per-run credentials and the start_index/limit window.
func (h *OrderHandler) RunHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	var cfg models.RunConfig
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid run config: "+err.Error())
			return
		}
	}

	if err := h.exporter.Start(r.Context(), orderID, cfg); err != nil {
		status := http.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		WriteError(w, status, err.Error())
		return
	}

	WriteStarted(w, "Export run started for order "+orderID)
}

// StopHandler handles POST /api/orders/{id}/stop
func (h *OrderHandler) StopHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	if err := h.exporter.Stop(r.Context(), orderID); err != nil {
		status := http.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		WriteError(w, status, err.Error())
		return
	}
	WriteSuccess(w, "Stop requested for order "+orderID)
}

// ArchiveHandler handles GET /api/orders/{id}/archive, serving the zip
func (h *OrderHandler) ArchiveHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	name, data, err := h.archives.Open(orderID)
	if err != nil {
		if errors.Is(err, files.ErrArchiveNotFound) {
			WriteError(w, http.StatusNotFound, "No archive for order "+orderID)
			return
		}
		h.logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to open archive")
		WriteError(w, http.StatusInternalServerError, "Failed to open archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// PreviewHandler handles GET /api/orders/{id}/preview/{invoice}, serving
// a single exported file out of the archive with a sniffed content type
func (h *OrderHandler) PreviewHandler(w http.ResponseWriter, r *http.Request, orderID, invoice string) {
	name, data, err := h.archives.ReadEntry(orderID, invoice)
	if err != nil {
		if errors.Is(err, files.ErrArchiveNotFound) {
			WriteError(w, http.StatusNotFound, "No archive for order "+orderID)
			return
		}
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	contentType := "application/octet-stream"
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else if len(data) > 0 {
		contentType = http.DetectContentType(data)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Write(data)
}

// StatsHandler handles GET /api/orders/stats
func (h *OrderHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.orders.Stats(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		if strings.Contains(err.Error(), "unknown period") {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Failed to compute order stats")
		WriteError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
