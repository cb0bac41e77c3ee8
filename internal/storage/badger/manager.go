package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/common"
	"github.com/ternarybob/concilio/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	job    interfaces.JobStorage
	call   interfaces.CallStorage
	lock   interfaces.LockStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		job:    NewJobStorage(db, logger),
		call:   NewCallStorage(db, logger),
		lock:   NewLockStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the analysis job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// CallStorage returns the call record storage interface
func (m *Manager) CallStorage() interfaces.CallStorage {
	return m.call
}

// LockStorage returns the finalization lock storage interface
func (m *Manager) LockStorage() interfaces.LockStorage {
	return m.lock
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
