// -----------------------------------------------------------------------
// App - Wires storage, services and handlers together
// -----------------------------------------------------------------------

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/common"
	"github.com/ternarybob/traho/internal/handlers"
	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/services/events"
	"github.com/ternarybob/traho/internal/services/export"
	"github.com/ternarybob/traho/internal/services/orders"
	"github.com/ternarybob/traho/internal/services/scheduler"
	"github.com/ternarybob/traho/internal/storage/badger"
	"github.com/ternarybob/traho/internal/storage/files"
)

// App holds the wired application
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badger.Manager
	UploadStore    interfaces.UploadStorage
	ArchiveStore   interfaces.ArchiveStorage

	EventService     interfaces.EventService
	OrderService     interfaces.OrderService
	ExportEngine     *export.Engine
	SchedulerService *scheduler.Service

	// HTTP handlers
	OrderHandler  *handlers.OrderHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New builds the application from configuration
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initStorage(); err != nil {
		return nil, err
	}
	if err := a.initServices(); err != nil {
		a.Close()
		return nil, err
	}
	a.initHandlers()

	logger.Info().Msg("Application initialized")
	return a, nil
}

func (a *App) initStorage() error {
	badgerPath := filepath.Join(a.Config.Storage.Badger.Path, "badger")
	manager, err := badger.NewManager(a.Logger, &common.BadgerConfig{
		Path:           badgerPath,
		ResetOnStartup: a.Config.Storage.Badger.ResetOnStartup,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = manager

	uploads, err := files.NewUploadStore(a.Config.Storage.Files.Uploads, a.Logger)
	if err != nil {
		return err
	}
	a.UploadStore = uploads

	archives, err := files.NewArchiveStore(a.Config.Storage.Files.Archives, a.Logger)
	if err != nil {
		return err
	}
	a.ArchiveStore = archives

	if err := os.MkdirAll(a.Config.Storage.Files.Downloads, 0755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	return nil
}

func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	orderStorage := a.StorageManager.OrderStorage()
	a.OrderService = orders.NewService(orderStorage, a.UploadStore, a.ArchiveStore, a.Logger)

	a.ExportEngine = export.NewEngine(
		a.Config.Bot,
		a.Config.Storage.Files.Downloads,
		orderStorage,
		a.ArchiveStore,
		a.EventService,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(
		a.Config.Scheduler,
		orderStorage,
		a.ExportEngine,
		a.Config.Storage.Files.Downloads,
		a.Logger,
	)
	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) initHandlers() {
	a.OrderHandler = handlers.NewOrderHandler(a.OrderService, a.ExportEngine, a.ArchiveStore, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.OrderService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
}

// Close releases application resources in reverse initialization order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}
	if a.ExportEngine != nil {
		a.ExportEngine.Shutdown()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
	}
	return nil
}
