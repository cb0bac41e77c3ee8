package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/common"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/ternarybob/concilio/internal/services/reconcile"
	"github.com/ternarybob/concilio/internal/services/webhook"
	badgerstorage "github.com/ternarybob/concilio/internal/storage/badger"
)

type countingProcessor struct {
	applies int64
}

func (p *countingProcessor) Apply(ctx context.Context, job *models.AnalysisJob, result *models.NormalizedResult) error {
	atomic.AddInt64(&p.applies, 1)
	return nil
}

type webhookFixture struct {
	handler   *WebhookHandler
	verifier  *webhook.Verifier
	manager   interfaces.StorageManager
	processor *countingProcessor
	job       *models.AnalysisJob
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	processor := &countingProcessor{}
	engine := reconcile.NewEngine(manager, processor, nil, 300*time.Second, logger)
	verifier := webhook.NewVerifier("shared-secret", 300*time.Second, logger)

	job := models.NewAnalysisJob(models.JobKindTranscription, "tenant-a", map[string]interface{}{
		"call_id": "call-1",
	})
	if err := job.MarkRunning("ext-1"); err != nil {
		t.Fatal(err)
	}
	if err := manager.JobStorage().SaveJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	return &webhookFixture{
		handler:   NewWebhookHandler(verifier, manager, engine, 3, logger),
		verifier:  verifier,
		manager:   manager,
		processor: processor,
		job:       job,
	}
}

func (f *webhookFixture) post(t *testing.T, body map[string]interface{}, sign bool) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/insight", bytes.NewReader(payload))
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-Timestamp", timestamp)
	if sign {
		req.Header.Set("X-Signature", f.verifier.Sign(payload, timestamp))
	} else {
		req.Header.Set("X-Signature", "deadbeef")
	}

	rec := httptest.NewRecorder()
	f.handler.InsightWebhookHandler(rec, req)
	return rec
}

func completionBody(externalID, tenantID string) map[string]interface{} {
	return map[string]interface{}{
		"success":   true,
		"job_id":    externalID,
		"status":    "completed",
		"tenant_id": tenantID,
		"result":    map[string]interface{}{"transcript": "hello world"},
	}
}

func TestWebhookFinalizesJob(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, completionBody("ext-1", "tenant-a"), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Data["status"] != "succeeded" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	stored, _ := f.manager.JobStorage().GetJob(context.Background(), f.job.ID)
	if stored.Status != models.JobStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", stored.Status)
	}
	if atomic.LoadInt64(&f.processor.applies) != 1 {
		t.Errorf("Expected one apply, got %d", f.processor.applies)
	}
}

func TestWebhookReplayReturnsAlreadyProcessed(t *testing.T) {
	f := newWebhookFixture(t)

	if rec := f.post(t, completionBody("ext-1", "tenant-a"), true); rec.Code != http.StatusOK {
		t.Fatalf("First delivery failed: %d", rec.Code)
	}

	rec := f.post(t, completionBody("ext-1", "tenant-a"), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on replay, got %d", rec.Code)
	}

	var resp struct {
		Data map[string]string `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Data["status"] != "already_processed" {
		t.Errorf("Expected already_processed, got %s", resp.Data["status"])
	}
	if atomic.LoadInt64(&f.processor.applies) != 1 {
		t.Errorf("Replay must not re-invoke the processor, applies=%d", f.processor.applies)
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, completionBody("ext-1", "tenant-a"), false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || resp.Error != "invalid_signature" {
		t.Errorf("Unexpected rejection body: %+v", resp)
	}

	stored, _ := f.manager.JobStorage().GetJob(context.Background(), f.job.ID)
	if stored.Status != models.JobStatusRunning {
		t.Errorf("Rejected webhook must not mutate the job, got %s", stored.Status)
	}
}

func TestWebhookStaleTimestamp(t *testing.T) {
	f := newWebhookFixture(t)

	payload, _ := json.Marshal(completionBody("ext-1", "tenant-a"))
	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).UnixMilli(), 10)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/insight", bytes.NewReader(payload))
	req.Header.Set("X-Timestamp", stale)
	req.Header.Set("X-Signature", f.verifier.Sign(payload, stale))

	rec := httptest.NewRecorder()
	f.handler.InsightWebhookHandler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for stale timestamp, got %d", rec.Code)
	}

	stored, _ := f.manager.JobStorage().GetJob(context.Background(), f.job.ID)
	if stored.Status != models.JobStatusRunning {
		t.Errorf("Stale webhook must not mutate the job, got %s", stored.Status)
	}
}

func TestWebhookTenantMismatch(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, completionBody("ext-1", "other-tenant"), true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", rec.Code)
	}

	stored, _ := f.manager.JobStorage().GetJob(context.Background(), f.job.ID)
	if stored.Status != models.JobStatusRunning {
		t.Errorf("Tenant-mismatched webhook must not mutate the job, got %s", stored.Status)
	}
	if atomic.LoadInt64(&f.processor.applies) != 0 {
		t.Error("Processor must not run on tenant mismatch")
	}
}

func TestWebhookUnknownJob(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, completionBody("ext-unknown", "tenant-a"), true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestWebhookFailureNotification(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, map[string]interface{}{
		"success":   false,
		"job_id":    "ext-1",
		"status":    "failed",
		"tenant_id": "tenant-a",
		"error": map[string]interface{}{
			"error_code": "invalid_audio",
			"message":    "unsupported codec",
			"retryable":  false,
		},
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := f.manager.JobStorage().GetJob(context.Background(), f.job.ID)
	if stored.Status != models.JobStatusFailed {
		t.Errorf("Expected failed, got %s", stored.Status)
	}
	if !stored.IsTerminal() {
		t.Error("Non-retryable failure must be terminal")
	}
	if stored.LastError == nil || stored.LastError.Code != "invalid_audio" {
		t.Errorf("Expected error metadata, got %+v", stored.LastError)
	}
}

func TestWebhookRetryableFailureSchedulesRetry(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, map[string]interface{}{
		"success":   false,
		"job_id":    "ext-1",
		"status":    "failed",
		"tenant_id": "tenant-a",
		"error": map[string]interface{}{
			"error_code": "model_error",
			"message":    "transient",
			"retryable":  true,
		},
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	stored, _ := f.manager.JobStorage().GetJob(context.Background(), f.job.ID)
	if stored.IsTerminal() {
		t.Error("Retryable failure within budget must stay non-terminal")
	}
	if stored.NextCheckAt == nil {
		t.Error("Expected retry check scheduled for the poller")
	}
}
