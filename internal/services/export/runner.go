// -----------------------------------------------------------------------
// Export Engine - Run controller for bulk invoice export sessions
// -----------------------------------------------------------------------

package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/common"
	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
)

// errRunStopped signals that a stop request was observed between retry
// attempts
var errRunStopped = errors.New("run stopped by request")

// Engine owns export runs. One run per order at a time; starting an order
// that is already running is an error, re-running a finished order resumes
// where it left off because completed items are skipped.
type Engine struct {
	config       common.BotConfig
	selectors    Selectors
	storage      interfaces.OrderStorage
	archives     interfaces.ArchiveStorage
	events       interfaces.EventService
	validate     *validator.Validate
	logger       arbor.ILogger
	downloadRoot string

	mu     sync.Mutex
	active map[string]context.CancelFunc

	// Seams for tests, defaulted to the chromedp session and the
	// filesystem capture
	newSession func(downloadDir string) (exportSession, error)
	capture    func(ctx context.Context, downloadDir, invoice string) (string, error)
}

// NewEngine creates an export engine
func NewEngine(config common.BotConfig, downloadRoot string, storage interfaces.OrderStorage, archives interfaces.ArchiveStorage, events interfaces.EventService, logger arbor.ILogger) *Engine {
	e := &Engine{
		config:       config,
		selectors:    DefaultSelectors(),
		storage:      storage,
		archives:     archives,
		events:       events,
		validate:     validator.New(),
		logger:       logger,
		downloadRoot: downloadRoot,
		active:       make(map[string]context.CancelFunc),
	}

	e.newSession = func(downloadDir string) (exportSession, error) {
		return NewSession(e.config, e.selectors, downloadDir, e.logger)
	}
	e.capture = func(ctx context.Context, downloadDir, invoice string) (string, error) {
		return CaptureDownload(ctx, downloadDir, invoice, e.config.DownloadInterval, e.config.DownloadAttempts)
	}

	return e
}

// Start launches an export run for the order in a background goroutine
func (e *Engine) Start(ctx context.Context, orderID string, cfg models.RunConfig) error {
	if err := e.validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}

	creds := Credentials{
		TargetURL: cfg.TargetURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if creds.TargetURL == "" {
		creds.TargetURL = e.config.TargetURL
	}
	if creds.Username == "" {
		creds.Username = e.config.Username
	}
	if creds.Password == "" {
		creds.Password = e.config.Password
	}
	if creds.TargetURL == "" || creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("target URL and credentials are required, configure defaults or supply them with the run")
	}

	order, err := e.storage.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Status.IsTerminal() {
		return fmt.Errorf("order %s is %s, wait for the active run to finish", orderID, order.Status)
	}
	if len(order.Items) == 0 {
		return fmt.Errorf("order %s has no invoices", orderID)
	}

	start, end := cfg.Window(len(order.Items))
	if start >= end {
		return fmt.Errorf("run window [%d, %d) selects no invoices", start, end)
	}

	e.mu.Lock()
	if _, running := e.active[orderID]; running {
		e.mu.Unlock()
		return fmt.Errorf("order %s already has an active run", orderID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e.active[orderID] = cancel
	e.mu.Unlock()

	if err := e.setStatus(ctx, orderID, models.RunStatusRunning, ""); err != nil {
		e.release(orderID)
		return err
	}

	common.SafeGo(e.logger, "export-run-"+orderID, func() {
		defer e.release(orderID)
		e.run(runCtx, orderID, creds, start, end)
	})

	return nil
}

// Stop requests cancellation of an active run. The stopping status is
// persisted immediately; the engine observes it at its next poll point.
func (e *Engine) Stop(ctx context.Context, orderID string) error {
	order, err := e.storage.Get(ctx, orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case models.RunStatusStopping:
		return nil // Already requested
	case models.RunStatusRunning:
		return e.setStatus(ctx, orderID, models.RunStatusStopping, "stop requested")
	default:
		return fmt.Errorf("order %s has no active run (status %s)", orderID, order.Status)
	}
}

// IsRunning reports whether this process owns a run for the order
func (e *Engine) IsRunning(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[orderID]
	return ok
}

// Shutdown cancels all active runs. Their goroutines observe the
// cancellation at the next browser step or poll point.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cancel := range e.active {
		e.logger.Info().Str("order_id", id).Msg("Cancelling run for shutdown")
		cancel()
	}
}

func (e *Engine) release(orderID string) {
	e.mu.Lock()
	if cancel, ok := e.active[orderID]; ok {
		cancel()
		delete(e.active, orderID)
	}
	e.mu.Unlock()
}

// run drives one export session end to end
func (e *Engine) run(ctx context.Context, orderID string, creds Credentials, start, end int) {
	log := e.logger.WithCorrelationId(orderID)

	// A persisted stop request cancels the run context so capture polls
	// and browser waits unblock without finishing their full bound
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.watchStop(ctx, orderID, cancel)

	order, err := e.storage.Get(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("Order disappeared before run start")
		return
	}

	downloadDir := filepath.Join(e.downloadRoot, orderID)
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		e.finish(orderID, models.RunStatusFailed, fmt.Sprintf("failed to create download directory: %v", err))
		return
	}

	session, err := e.newSession(downloadDir)
	if err != nil {
		e.finish(orderID, models.RunStatusFailed, fmt.Sprintf("browser start failed: %v", err))
		return
	}
	defer session.Close()

	if err := session.Login(ctx, creds); err != nil {
		e.finish(orderID, models.RunStatusFailed, fmt.Sprintf("login failed: %v", err))
		return
	}
	if err := session.OpenExportScreen(ctx); err != nil {
		e.finish(orderID, models.RunStatusFailed, fmt.Sprintf("navigation failed: %v", err))
		return
	}

	total := end - start
	log.Info().Int("invoices", total).Int("start_index", start).Msg("Export run started")
	e.publishLog(orderID, "info", fmt.Sprintf("Exporting %d invoices", total))

	for i := start; i < end; i++ {
		if e.stopRequested(orderID) || ctx.Err() != nil {
			e.finish(orderID, models.RunStatusCancelled, "run stopped by request")
			return
		}

		item := &order.Items[i]
		if item.Status == models.ItemStatusCompleted {
			log.Debug().Str("invoice", item.InvoiceNumber).Msg("Invoice already exported, skipping")
			e.publishProgress(order.ID, item, i-start+1, total)
			continue
		}

		item.Status = models.ItemStatusProcessing
		item.Message = ""
		e.persist(order)
		e.publishProgress(order.ID, item, i-start+1, total)

		err := e.exportWithRetries(ctx, orderID, session, downloadDir, item.InvoiceNumber, log)
		if ctx.Err() != nil || errors.Is(err, errRunStopped) {
			e.finish(orderID, models.RunStatusCancelled, "run stopped by request")
			return
		}

		if err != nil {
			item.Status = models.ItemStatusFailed
			item.Message = err.Error()
			log.Warn().Err(err).Str("invoice", item.InvoiceNumber).Msg("Invoice export failed")
			e.publishLog(order.ID, "warn", fmt.Sprintf("Invoice %s failed: %v", item.InvoiceNumber, err))
		} else {
			item.Status = models.ItemStatusCompleted
			item.Message = ""
			log.Info().Str("invoice", item.InvoiceNumber).Msg("Invoice exported")
			e.publishLog(order.ID, "info", "Invoice "+item.InvoiceNumber+" exported")
		}

		e.persist(order)
		e.publishProgress(order.ID, item, i-start+1, total)
	}

	e.archiveRun(order, downloadDir, log)
}

// exportWithRetries attempts one invoice up to the configured budget.
// Each attempt repeats both the UI ritual and the download capture. A
// stop request is honored between attempts, and a capture that times
// out after a successful export does not fail the item: the download
// simply never landed, which is not worth repeating the UI ritual for.
func (e *Engine) exportWithRetries(ctx context.Context, orderID string, session exportSession, downloadDir, invoice string, log arbor.ILogger) error {
	budget := e.config.AttemptBudget
	if budget < 1 {
		budget = 1
	}

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.stopRequested(orderID) {
			return errRunStopped
		}

		err := session.ExportInvoice(ctx, invoice)
		if err == nil {
			_, err = e.capture(ctx, downloadDir, invoice)
			if errors.Is(err, ErrPollExhausted) {
				log.Warn().
					Str("invoice", invoice).
					Msg("Export succeeded but no download appeared, continuing without a capture")
				return nil
			}
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("invoice", invoice).
			Int("attempt", attempt).
			Int("budget", budget).
			Msg("Export attempt failed")
	}

	return fmt.Errorf("failed after %d attempts: %w", budget, lastErr)
}

// archiveRun zips the capture directory and closes out the run
func (e *Engine) archiveRun(order *models.Order, downloadDir string, log arbor.ILogger) {
	name, data, err := BuildArchive(downloadDir, order.ArchiveBaseName())
	if err == ErrNoExports {
		e.finish(order.ID, models.RunStatusCompleted, "run finished with no exports captured")
		return
	}
	if err != nil {
		e.finish(order.ID, models.RunStatusFailed, fmt.Sprintf("archive build failed: %v", err))
		return
	}

	if _, err := e.archives.Save(order.ID, name, data); err != nil {
		e.finish(order.ID, models.RunStatusFailed, fmt.Sprintf("archive save failed: %v", err))
		return
	}

	order.ArchiveName = name
	e.persist(order)

	// The stored zip is now the source of truth for the captures
	if err := os.RemoveAll(downloadDir); err != nil {
		log.Warn().Err(err).Str("dir", downloadDir).Msg("Failed to remove download directory")
	}

	if e.config.LocalCopy {
		if path, err := CopyToUserDownloads(name, data); err != nil {
			log.Warn().Err(err).Msg("Failed to copy archive to the local Downloads folder")
		} else {
			log.Info().Str("path", path).Msg("Archive copied to the local Downloads folder")
		}
	}

	counts := order.Counts()
	e.finish(order.ID, models.RunStatusCompleted,
		fmt.Sprintf("%d exported, %d failed, archive %s", counts.Completed, counts.Failed, name))
}

// watchStop polls for a persisted stop request and cancels the run
// context when one lands, unblocking capture polls and browser waits
func (e *Engine) watchStop(ctx context.Context, orderID string, cancel context.CancelFunc) {
	common.SafeGo(e.logger, "stop-watch-"+orderID, func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.stopRequested(orderID) {
					cancel()
					return
				}
			}
		}
	})
}

// stopRequested polls persisted state so a stop issued through any replica
// or request context is honored
func (e *Engine) stopRequested(orderID string) bool {
	order, err := e.storage.Get(context.Background(), orderID)
	if err != nil {
		return false
	}
	return order.Status == models.RunStatusStopping
}

// persist writes engine-side progress without clobbering a stop request
// persisted by another writer
func (e *Engine) persist(order *models.Order) {
	ctx := context.Background()

	if current, err := e.storage.Get(ctx, order.ID); err == nil {
		if current.Status == models.RunStatusStopping {
			order.Status = current.Status
		}
	}
	if err := e.storage.Store(ctx, order); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to persist run progress")
	}
	if err := e.storage.Heartbeat(ctx, order.ID); err != nil {
		e.logger.Debug().Err(err).Str("order_id", order.ID).Msg("Heartbeat write failed")
	}
}

// finish records the terminal status and publishes the transition. A stop
// that landed after the last poll point must not be overwritten by a
// completed outcome.
func (e *Engine) finish(orderID string, status models.RunStatus, message string) {
	ctx := context.Background()

	if status == models.RunStatusCompleted && e.stopRequested(orderID) {
		status = models.RunStatusCancelled
		message = "run stopped by request"
	}

	if err := e.storage.UpdateStatus(ctx, orderID, status, message); err != nil {
		e.logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to record run outcome")
	}
	e.publishStatus(orderID, status, message)

	e.logger.Info().
		Str("order_id", orderID).
		Str("status", string(status)).
		Str("message", message).
		Msg("Export run finished")
}

func (e *Engine) setStatus(ctx context.Context, orderID string, status models.RunStatus, message string) error {
	if err := e.storage.UpdateStatus(ctx, orderID, status, message); err != nil {
		return err
	}
	e.publishStatus(orderID, status, message)
	return nil
}

func (e *Engine) publishStatus(orderID string, status models.RunStatus, message string) {
	if e.events == nil {
		return
	}

	payload := models.StatusChangePayload{
		OrderID: orderID,
		Status:  status,
		Message: message,
	}
	if order, err := e.storage.Get(context.Background(), orderID); err == nil {
		payload.Counts = order.Counts()
		if order.ArchiveName != "" {
			payload.FileURL = "/api/orders/" + orderID + "/archive"
		}
	}

	e.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventStatusChange,
		Payload: payload,
	})
}

// publishLog mirrors notable engine log lines to streaming clients
func (e *Engine) publishLog(orderID, level, message string) {
	if e.events == nil {
		return
	}

	e.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventRunLog,
		Payload: models.RunLogPayload{
			OrderID:   orderID,
			Level:     level,
			Message:   message,
			Timestamp: time.Now(),
		},
	})
}

func (e *Engine) publishProgress(orderID string, item *models.LineItem, index, total int) {
	if e.events == nil {
		return
	}

	e.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventItemProgress,
		Payload: models.ItemProgressPayload{
			OrderID:       orderID,
			InvoiceNumber: item.InvoiceNumber,
			Index:         index,
			Total:         total,
			Status:        item.Status,
			Message:       item.Message,
		},
	})
}
