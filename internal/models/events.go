package models

import "time"

// StatusChangePayload is published whenever an order's run status changes
type StatusChangePayload struct {
	OrderID string     `json:"order_id"`
	Status  RunStatus  `json:"status"`
	Message string     `json:"message,omitempty"`
	FileURL string     `json:"file_url,omitempty"` // Archive download URL, set once the zip is stored
	Counts  ItemCounts `json:"counts"`
}

// ItemProgressPayload is published as each invoice advances
type ItemProgressPayload struct {
	OrderID       string     `json:"order_id"`
	InvoiceNumber string     `json:"invoice_number"`
	Index         int        `json:"index"` // One-based position within this run's window
	Total         int        `json:"total"` // Window size for this run
	Status        ItemStatus `json:"status"`
	Message       string     `json:"message,omitempty"`
}

// RunLogPayload carries engine log lines to streaming clients
type RunLogPayload struct {
	OrderID   string    `json:"order_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
