package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/common"
	"github.com/ternarybob/concilio/internal/insight"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	badgerstorage "github.com/ternarybob/concilio/internal/storage/badger"
)

type stubClient struct {
	externalID string
	err        error
}

func (c *stubClient) Submit(ctx context.Context, kind models.JobKind, tenantID string, payload map[string]interface{}) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.externalID, nil
}

func (c *stubClient) GetStatus(ctx context.Context, kind models.JobKind, tenantID, externalID string) (*models.UpstreamStatus, error) {
	return &models.UpstreamStatus{State: models.UpstreamProcessing}, nil
}

func (c *stubClient) GetResult(ctx context.Context, kind models.JobKind, tenantID, externalID string) (map[string]interface{}, error) {
	return nil, nil
}

func newTestService(t *testing.T, client interfaces.JobClient) (*Service, interfaces.StorageManager) {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	return NewService(manager, client, nil, logger), manager
}

func TestSubmitHappyPath(t *testing.T) {
	service, manager := newTestService(t, &stubClient{externalID: "ext-1"})
	ctx := context.Background()

	job, err := service.Submit(ctx, "tenant-a", models.JobKindTranscription, map[string]interface{}{
		"call_id": "call-1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if job.Status != models.JobStatusRunning {
		t.Errorf("Expected running, got %s", job.Status)
	}
	if job.ExternalID != "ext-1" {
		t.Errorf("Expected external ID recorded, got %s", job.ExternalID)
	}

	stored, err := manager.JobStorage().GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job not persisted: %v", err)
	}
	if stored.NextCheckAt == nil {
		t.Error("Expected first status check scheduled")
	}
}

func TestSubmitValidation(t *testing.T) {
	service, _ := newTestService(t, &stubClient{externalID: "ext-1"})
	ctx := context.Background()

	if _, err := service.Submit(ctx, "", models.JobKindTranscription, nil); err == nil {
		t.Error("Expected error for missing tenant")
	}
	if _, err := service.Submit(ctx, "tenant-a", "reticulation", nil); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestSubmitTransientEngineOutageDefersJob(t *testing.T) {
	client := &stubClient{err: &insight.APIError{StatusCode: 503, Endpoint: "/v1/transcriptions"}}
	service, manager := newTestService(t, client)
	ctx := context.Background()

	job, err := service.Submit(ctx, "tenant-a", models.JobKindTranscription, map[string]interface{}{
		"call_id": "call-1",
	})
	if err != nil {
		t.Fatalf("Expected deferred submission, got error: %v", err)
	}

	if job.Status != models.JobStatusPending {
		t.Errorf("Expected pending, got %s", job.Status)
	}
	if job.ExternalID != "" {
		t.Error("Expected no external ID on deferred submission")
	}

	stored, _ := manager.JobStorage().GetJob(ctx, job.ID)
	if stored.NextCheckAt == nil {
		t.Error("Expected resubmission scheduled for the poller")
	}
}

func TestSubmitFatalRejection(t *testing.T) {
	client := &stubClient{err: &insight.APIError{
		StatusCode: 422,
		Endpoint:   "/v1/transcriptions",
		Detail:     insight.ErrorDetail{ErrorCode: "invalid_audio", Message: "bad codec"},
	}}
	service, manager := newTestService(t, client)
	ctx := context.Background()

	_, err := service.Submit(ctx, "tenant-a", models.JobKindTranscription, map[string]interface{}{
		"call_id": "call-1",
	})
	if err == nil {
		t.Fatal("Expected submission error")
	}

	// The record survives as FAILED for audit
	listed, listErr := manager.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{TenantID: "tenant-a"})
	if listErr != nil || len(listed) != 1 {
		t.Fatalf("Expected one persisted job, got %d (err %v)", len(listed), listErr)
	}
	if listed[0].Status != models.JobStatusFailed {
		t.Errorf("Expected failed, got %s", listed[0].Status)
	}
	if listed[0].LastError == nil || listed[0].LastError.Code != "invalid_audio" {
		t.Errorf("Expected error metadata, got %+v", listed[0].LastError)
	}
}

func TestGetEnforcesTenantScope(t *testing.T) {
	service, _ := newTestService(t, &stubClient{externalID: "ext-1"})
	ctx := context.Background()

	job, err := service.Submit(ctx, "tenant-a", models.JobKindAnalysis, map[string]interface{}{"call_id": "call-1"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := service.Get(ctx, "tenant-a", job.ID); err != nil {
		t.Errorf("Owner lookup failed: %v", err)
	}

	_, err = service.Get(ctx, "tenant-b", job.ID)
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cross-tenant lookup must read as not found, got %v", err)
	}
}

func TestListScopedToTenant(t *testing.T) {
	service, _ := newTestService(t, &stubClient{externalID: "ext-1"})
	ctx := context.Background()

	for _, tenant := range []string{"tenant-a", "tenant-a", "tenant-b"} {
		if _, err := service.Submit(ctx, tenant, models.JobKindTranscription, map[string]interface{}{"call_id": "call-x"}); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := service.List(ctx, "tenant-a", nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs for tenant-a, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.TenantID != "tenant-a" {
			t.Errorf("Leaked job from tenant %s", job.TenantID)
		}
	}

	// Caller-supplied tenant filter cannot widen the scope
	jobs, err = service.List(ctx, "tenant-b", &interfaces.JobListOptions{TenantID: "tenant-a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].TenantID != "tenant-b" {
		t.Error("List must override the tenant filter with the caller's tenant")
	}
}
