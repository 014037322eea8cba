package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	papers interfaces.PaperStorage
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		papers: NewPaperStorage(db, logger),
		jobs:   NewJobStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Papers returns the paper storage interface
func (m *Manager) Papers() interfaces.PaperStorage {
	return m.papers
}

// Jobs returns the job record storage interface
func (m *Manager) Jobs() interfaces.JobStorage {
	return m.jobs
}

// DB returns the underlying database wrapper for components that need
// raw Badger access (the durable queue keyspace).
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the underlying database
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
