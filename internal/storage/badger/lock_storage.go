package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LockStorage implements a lease-based distributed lock over Badger.
// Acquisition runs inside a single Badger transaction so two concurrent
// acquirers can never both win: the loser either observes the live lease
// or hits a transaction conflict, and both read as contention.
type LockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLockStorage creates a new LockStorage instance
func NewLockStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LockStorage {
	return &LockStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LockStorage) TryAcquire(ctx context.Context, tenantID, jobID, token string, lease time.Duration) (bool, error) {
	if tenantID == "" || jobID == "" || token == "" {
		return false, fmt.Errorf("tenant ID, job ID and token are required")
	}

	key := models.LockKey(tenantID, jobID)
	now := time.Now()
	acquired := false

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing models.JobLock
		err := s.db.Store().TxGet(txn, key, &existing)
		if err == nil && !existing.Expired(now) {
			// Live lease held by the other path
			return nil
		}
		if err != nil && err != badgerhold.ErrNotFound {
			return err
		}

		lock := &models.JobLock{
			Key:        key,
			TenantID:   tenantID,
			JobID:      jobID,
			Token:      token,
			AcquiredAt: now,
			ExpiresAt:  now.Add(lease),
		}
		if err := s.db.Store().TxUpsert(txn, key, lock); err != nil {
			return err
		}
		acquired = true
		return nil
	})

	if err != nil {
		if err == badgerdb.ErrConflict {
			// The other path won the transaction race
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return acquired, nil
}

func (s *LockStorage) Release(ctx context.Context, tenantID, jobID, token string) error {
	key := models.LockKey(tenantID, jobID)

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing models.JobLock
		err := s.db.Store().TxGet(txn, key, &existing)
		if err == badgerhold.ErrNotFound {
			// Already released or expired away
			return nil
		}
		if err != nil {
			return err
		}
		if existing.Token != token {
			// Lease was reclaimed by another owner; nothing to release
			return nil
		}
		return s.db.Store().TxDelete(txn, key, models.JobLock{})
	})

	if err != nil && err != badgerdb.ErrConflict {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (s *LockStorage) Extend(ctx context.Context, tenantID, jobID, token string, lease time.Duration) (bool, error) {
	key := models.LockKey(tenantID, jobID)
	extended := false

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing models.JobLock
		if err := s.db.Store().TxGet(txn, key, &existing); err != nil {
			if err == badgerhold.ErrNotFound {
				return nil
			}
			return err
		}
		if existing.Token != token {
			return nil
		}
		existing.ExpiresAt = time.Now().Add(lease)
		if err := s.db.Store().TxUpsert(txn, key, &existing); err != nil {
			return err
		}
		extended = true
		return nil
	})

	if err != nil {
		if err == badgerdb.ErrConflict {
			return false, nil
		}
		return false, fmt.Errorf("failed to extend lock: %w", err)
	}
	return extended, nil
}

func (s *LockStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []models.JobLock
	if err := s.db.Store().Find(&expired, badgerhold.Where("ExpiresAt").Lt(now)); err != nil {
		return 0, fmt.Errorf("failed to find expired locks: %w", err)
	}

	deleted := 0
	for i := range expired {
		if err := s.db.Store().Delete(expired[i].Key, models.JobLock{}); err != nil {
			s.logger.Warn().Err(err).Str("key", expired[i].Key).Msg("Failed to delete expired lock")
			continue
		}
		deleted++
	}
	return deleted, nil
}
