package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/ternarybob/concilio/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := []ClientOption{
		WithBaseURL(server.URL),
		WithRateLimit(1000),
	}
	return NewClient("test-key", append(base, opts...)...)
}

func TestClientSubmit(t *testing.T) {
	var gotTenant, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcriptions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		gotTenant = r.Header.Get("X-Tenant-ID")
		gotAuth = r.Header.Get("Authorization")

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if body["tenant_id"] != "tenant_a" {
			t.Errorf("Expected tenant_id in body, got %v", body["tenant_id"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"job_id":  "ext_123",
		})
	})

	externalID, err := client.Submit(context.Background(), models.JobKindTranscription, "tenant_a", map[string]interface{}{"call_id": "call_1"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if externalID != "ext_123" {
		t.Errorf("Expected ext_123, got %s", externalID)
	}
	if gotTenant != "tenant_a" {
		t.Errorf("Expected X-Tenant-ID header, got %s", gotTenant)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth, got %s", gotAuth)
	}
}

func TestClientSubmitLegacyTaskID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"task_id": "legacy_9",
		})
	})

	externalID, err := client.Submit(context.Background(), models.JobKindAnalysis, "tenant_a", nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if externalID != "legacy_9" {
		t.Errorf("Expected task_id fallback, got %s", externalID)
	}
}

func TestClientGetStatusFailed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/analyses/ext_1/status" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"status":  "failed",
			"error": map[string]interface{}{
				"code":      "model_error",
				"detail":    "model crashed",
				"retryable": true,
			},
		})
	})

	status, err := client.GetStatus(context.Background(), models.JobKindAnalysis, "tenant_a", "ext_1")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.State != models.UpstreamFailed {
		t.Errorf("Expected failed state, got %s", status.State)
	}
	if status.Error == nil {
		t.Fatal("Expected error detail on failed status")
	}
	if status.Error.Code != "model_error" {
		t.Errorf("Expected legacy code mapped through, got %s", status.Error.Code)
	}
	if !status.Error.Retryable {
		t.Error("Expected retryable error")
	}
}

func TestClientGetResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"result": map[string]interface{}{
				"transcript": "hello",
			},
		})
	})

	payload, err := client.GetResult(context.Background(), models.JobKindTranscription, "tenant_a", "ext_1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if payload["transcript"] != "hello" {
		t.Errorf("Expected result payload, got %v", payload)
	}
}

func TestClientErrorClassification(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error": map[string]interface{}{
				"error_code": "invalid_audio",
				"message":    "unsupported codec",
				"retryable":  false,
			},
		})
	})

	_, err := client.Submit(context.Background(), models.JobKindTranscription, "tenant_a", nil)
	if err == nil {
		t.Fatal("Expected error for 422 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.Detail.ErrorCode != "invalid_audio" {
		t.Errorf("Expected error_code invalid_audio, got %s", apiErr.Detail.ErrorCode)
	}
	if IsRetryable(err) {
		t.Error("Expected 422 with retryable=false to be fatal")
	}
	if ErrorCode(err) != "invalid_audio" {
		t.Errorf("Expected code invalid_audio, got %s", ErrorCode(err))
	}
}

func TestClientRetryableStatuses(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})

		_, err := client.Submit(context.Background(), models.JobKindTranscription, "tenant_a", nil)
		if err == nil {
			t.Fatalf("Expected error for status %d", code)
		}
		if !IsRetryable(err) {
			t.Errorf("Expected status %d to classify as retryable", code)
		}
	}
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}, WithBreakerConfig(BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}))

	for i := 0; i < 3; i++ {
		if _, err := client.Submit(context.Background(), models.JobKindTranscription, "tenant_a", nil); err == nil {
			t.Fatal("Expected failure")
		}
	}
	if requests != 3 {
		t.Fatalf("Expected 3 upstream requests before trip, got %d", requests)
	}

	_, err := client.Submit(context.Background(), models.JobKindTranscription, "tenant_a", nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected open breaker error, got %v", err)
	}
	if requests != 3 {
		t.Errorf("Expected open breaker to short-circuit, upstream saw %d requests", requests)
	}
	if !IsRetryable(err) {
		t.Error("Expected breaker-open to classify as retryable")
	}
	if ErrorCode(err) != "circuit_open" {
		t.Errorf("Expected circuit_open code, got %s", ErrorCode(err))
	}
}

func TestClientBreakerIsolatedPerTenant(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Tenant-ID") == "noisy" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"job_id":  "ext_ok",
		})
	}, WithBreakerConfig(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute}))

	for i := 0; i < 3; i++ {
		client.Submit(context.Background(), models.JobKindTranscription, "noisy", nil)
	}

	// The quiet tenant's breaker is untouched by the noisy tenant's failures
	if _, err := client.Submit(context.Background(), models.JobKindTranscription, "quiet", nil); err != nil {
		t.Errorf("Expected quiet tenant to succeed, got %v", err)
	}
}
