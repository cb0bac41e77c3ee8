package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrCallNotFound is returned when a call lookup finds no record.
var ErrCallNotFound = fmt.Errorf("call not found")

// CallStorage implements the CallStorage interface for Badger
type CallStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCallStorage creates a new CallStorage instance
func NewCallStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CallStorage {
	return &CallStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CallStorage) SaveCall(ctx context.Context, call *models.CallRecord) error {
	if call.ID == "" {
		return fmt.Errorf("call ID is required")
	}
	if call.TenantID == "" {
		return fmt.Errorf("call tenant ID is required")
	}

	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}
	call.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(callKey(call.TenantID, call.ID), call); err != nil {
		return fmt.Errorf("failed to save call: %w", err)
	}
	return nil
}

func (s *CallStorage) GetCall(ctx context.Context, tenantID, callID string) (*models.CallRecord, error) {
	var call models.CallRecord
	if err := s.db.Store().Get(callKey(tenantID, callID), &call); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return &call, nil
}

// callKey scopes call records by tenant so one tenant can never address
// another tenant's record.
func callKey(tenantID, callID string) string {
	return tenantID + "/" + callID
}
