package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/common"
	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
)

// StatusHandler serves version, health and application status endpoints
type StatusHandler struct {
	orders    interfaces.OrderService
	startTime time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(orders interfaces.OrderService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		orders:    orders,
		startTime: time.Now(),
		logger:    logger,
	}
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
	})
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusHandler handles GET /api/status with run and order counts
func (h *StatusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := map[string]interface{}{
		"version":    common.GetVersion(),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"goroutines": common.GetGoroutineCount(),
	}

	if orders, err := h.orders.List(r.Context()); err == nil {
		active := 0
		for _, order := range orders {
			if order.Status == models.RunStatusRunning || order.Status == models.RunStatusStopping {
				active++
			}
		}
		status["orders"] = len(orders)
		status["active_runs"] = active
	}

	WriteJSON(w, http.StatusOK, status)
}

// NotFoundHandler handles unmatched API routes
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Not found: "+r.URL.Path)
}
