// -----------------------------------------------------------------------
// Order - Uploaded invoice order and its export run state
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// RunStatus represents the lifecycle state of an order's export run.
//
// Transitions:
//
//	idle -> running          (run started)
//	running -> stopping      (stop requested, engine still winding down)
//	stopping -> cancelled    (engine observed the stop request)
//	running -> completed     (all selected invoices processed)
//	running -> failed        (unrecoverable error: login, navigation, archive)
//	any terminal -> running  (re-run)
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusStopping  RunStatus = "stopping"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true when the status allows a new run to start
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusIdle, RunStatusCancelled, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// IsActive returns true while an engine owns the order
func (s RunStatus) IsActive() bool {
	return s == RunStatusRunning || s == RunStatusStopping
}

// ItemStatus represents the per-invoice export state
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// LineItem is a single invoice row parsed from an uploaded spreadsheet
type LineItem struct {
	No            int        `json:"no"`
	Customer      string     `json:"customer"`
	InvoiceNumber string     `json:"invoice_number"`
	Destination   string     `json:"destination"`
	Forwarder     string     `json:"forwarder"`
	Qty           float64    `json:"qty"`
	Amount        float64    `json:"amount"`
	ETA           string     `json:"eta"`
	Via           string     `json:"via"`
	Status        ItemStatus `json:"status"`
	Message       string     `json:"message,omitempty"` // Failure detail for the last attempt
}

// Order represents an uploaded spreadsheet and the export run built on it.
// The order is the unit of persistence: item progress and run status are
// written back to storage as the engine advances so stop requests and
// restarts observe a consistent view.
type Order struct {
	ID            string     `json:"id" badgerhold:"key"`
	FileName      string     `json:"file_name"`             // Original upload name
	UploadPath    string     `json:"upload_path,omitempty"` // Stored copy of the upload
	Items         []LineItem `json:"items"`
	Status        RunStatus  `json:"status" badgerholdIndex:"Status"`
	Message       string     `json:"message,omitempty"` // Run-level failure or completion detail
	ArchiveName   string     `json:"archive_name,omitempty"`
	UploadedAt    time.Time  `json:"uploaded_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	LastHeartbeat time.Time  `json:"last_heartbeat"` // Updated while a run is active, drives stale-run sweeping
}

// NewOrder creates an order in the idle state
func NewOrder(id, fileName string, items []LineItem) *Order {
	for i := range items {
		if items[i].Status == "" {
			items[i].Status = ItemStatusPending
		}
	}
	return &Order{
		ID:         id,
		FileName:   fileName,
		Items:      items,
		Status:     RunStatusIdle,
		UploadedAt: time.Now(),
	}
}

// ItemCounts summarizes per-item progress for an order
type ItemCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Counts tallies item statuses
func (o *Order) Counts() ItemCounts {
	c := ItemCounts{Total: len(o.Items)}
	for i := range o.Items {
		switch o.Items[i].Status {
		case ItemStatusProcessing:
			c.Processing++
		case ItemStatusCompleted:
			c.Completed++
		case ItemStatusFailed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c
}

// ArchiveBaseName returns the base used for the zip archive name.
// Uploads named like "march.xlsx" produce "march.zip"; orders without
// a usable base fall back to "Invoices_<id>.zip".
func (o *Order) ArchiveBaseName() string {
	name := o.FileName
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			name = name[:i]
			break
		}
	}
	if name == "" {
		return "Invoices_" + o.ID
	}
	return name
}

// RunConfig carries per-run parameters supplied at start time.
// Empty credential fields fall back to the configured defaults.
type RunConfig struct {
	TargetURL  string `json:"target_url" validate:"omitempty,url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	StartIndex int    `json:"start_index" validate:"gte=0"` // Zero-based offset into the item list
	Limit      int    `json:"limit" validate:"gte=0"`       // Max items this run, 0 means all remaining
}

// Window resolves the [start, end) slice bounds this run covers
func (rc RunConfig) Window(total int) (int, int) {
	start := rc.StartIndex
	if start > total {
		start = total
	}
	end := total
	if rc.Limit > 0 && start+rc.Limit < total {
		end = start + rc.Limit
	}
	return start, end
}

// OrderStats aggregates export outcomes across orders
type OrderStats struct {
	TotalOrders     int     `json:"total_orders"`
	TotalInvoices   int     `json:"total_invoices"`
	CompletedRuns   int     `json:"completed_runs"`
	FailedRuns      int     `json:"failed_runs"`
	ActiveRuns      int     `json:"active_runs"`
	InvoicesDone    int     `json:"invoices_done"`
	InvoicesFailed  int     `json:"invoices_failed"`
	SuccessRatePct  float64 `json:"success_rate_pct"`
}
