package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/traho/internal/common"
	"github.com/ternarybob/traho/internal/interfaces"
)

// Manager bundles the Badger-backed storage interfaces
type Manager struct {
	db     *BadgerDB
	orders interfaces.OrderStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		orders: NewOrderStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// OrderStorage returns the Order storage interface
func (m *Manager) OrderStorage() interfaces.OrderStorage {
	return m.orders
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
