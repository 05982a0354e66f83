package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger.
// The queue and the job store live in separate databases so one compaction
// cannot stall the other.
type Manager struct {
	queueDB *BadgerDB
	jobsDB  *BadgerDB
	queue   interfaces.QueueStorage
	jobs    interfaces.JobStorage
	logger  arbor.ILogger
}

// NewManager opens both databases and wires the storage interfaces
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (interfaces.StorageManager, error) {
	queueDB, err := NewBadgerDB(logger, config.QueuePath)
	if err != nil {
		return nil, err
	}

	jobsDB, err := NewBadgerDB(logger, config.JobsPath)
	if err != nil {
		queueDB.Close()
		return nil, err
	}

	manager := &Manager{
		queueDB: queueDB,
		jobsDB:  jobsDB,
		queue:   NewQueueStorage(queueDB, logger),
		jobs:    NewJobStorage(jobsDB, logger),
		logger:  logger,
	}

	logger.Info().
		Str("queue_path", config.QueuePath).
		Str("jobs_path", config.JobsPath).
		Msg("Badger storage manager initialized")

	return manager, nil
}

// QueueStorage returns the queue storage interface
func (m *Manager) QueueStorage() interfaces.QueueStorage {
	return m.queue
}

// JobStorage returns the job record storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// Close closes both database connections
func (m *Manager) Close() error {
	var firstErr error
	if m.queueDB != nil {
		if err := m.queueDB.Close(); err != nil {
			firstErr = err
		}
	}
	if m.jobsDB != nil {
		if err := m.jobsDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
