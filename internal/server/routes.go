package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Orders
	mux.HandleFunc("/api/orders/stats", s.app.OrderHandler.StatsHandler) // GET - aggregate export outcomes
	mux.HandleFunc("/api/orders", s.handleOrdersRoute)                   // GET (list), POST (upload)
	mux.HandleFunc("/api/orders/", s.handleOrderRoutes)                  // Per-order routes and run control

	// API routes - System
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.StatusHandler.NotFoundHandler)

	return mux
}

// handleOrdersRoute dispatches the orders collection endpoint
func (s *Server) handleOrdersRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.OrderHandler.ListHandler(w, r)
	case "POST":
		s.app.OrderHandler.UploadHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleOrderRoutes dispatches per-order routes:
//
//	GET    /api/orders/{id}
//	DELETE /api/orders/{id}
//	POST   /api/orders/{id}/run
//	POST   /api/orders/{id}/stop
//	GET    /api/orders/{id}/archive
//	GET    /api/orders/{id}/preview/{invoice}
func (s *Server) handleOrderRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Order ID required", http.StatusBadRequest)
		return
	}
	orderID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case "GET":
			s.app.OrderHandler.GetHandler(w, r, orderID)
		case "DELETE":
			s.app.OrderHandler.DeleteHandler(w, r, orderID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "run":
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.OrderHandler.RunHandler(w, r, orderID)
	case "stop":
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.OrderHandler.StopHandler(w, r, orderID)
	case "archive":
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.OrderHandler.ArchiveHandler(w, r, orderID)
	case "preview":
		if r.Method != "GET" || len(parts) < 3 || parts[2] == "" {
			http.Error(w, "Invoice number required", http.StatusBadRequest)
			return
		}
		s.app.OrderHandler.PreviewHandler(w, r, orderID, parts[2])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}
