package models

import "time"

// JobLock is a lease record backing the distributed finalization lock.
// One live lease exists per (tenant, job); an expired lease is reclaimable.
type JobLock struct {
	Key        string    `json:"key"` // "<tenant_id>/<job_id>"
	TenantID   string    `json:"tenant_id"`
	JobID      string    `json:"job_id"`
	Token      string    `json:"token"` // Owner token; release requires a match
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *JobLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockKey builds the composite lease key for a tenant-scoped job lock.
func LockKey(tenantID, jobID string) string {
	return tenantID + "/" + jobID
}
