package webhook

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func newTestVerifier(secret string, maxAge time.Duration) *Verifier {
	return NewVerifier(secret, maxAge, arbor.NewLogger())
}

func TestVerifyValidSignature(t *testing.T) {
	verifier := newTestVerifier("shared-secret", 300*time.Second)

	body := []byte(`{"success":true,"job_id":"ext_1","status":"completed","tenant_id":"tenant_a"}`)
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := verifier.Sign(body, timestamp)

	if err := verifier.Verify(body, signature, timestamp); err != nil {
		t.Errorf("Expected valid signature to verify, got %v", err)
	}
}

func TestVerifyAcceptsPrefixedUppercaseSignature(t *testing.T) {
	verifier := newTestVerifier("shared-secret", 300*time.Second)

	body := []byte(`{"job_id":"ext_1"}`)
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := "sha256=" + verifier.Sign(body, timestamp)

	if err := verifier.Verify(body, signature, timestamp); err != nil {
		t.Errorf("Expected prefixed signature to verify, got %v", err)
	}
}

func TestVerifySingleByteMutationFails(t *testing.T) {
	verifier := newTestVerifier("shared-secret", 300*time.Second)

	body := []byte(`{"job_id":"ext_1","status":"completed"}`)
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := verifier.Sign(body, timestamp)

	mutated := make([]byte, len(body))
	copy(mutated, body)
	mutated[len(mutated)-2] ^= 0x01

	if err := verifier.Verify(mutated, signature, timestamp); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for mutated body, got %v", err)
	}
}

func TestVerifyWrongSecretFails(t *testing.T) {
	signer := newTestVerifier("secret-a", 300*time.Second)
	verifier := newTestVerifier("secret-b", 300*time.Second)

	body := []byte(`{"job_id":"ext_1"}`)
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := signer.Sign(body, timestamp)

	if err := verifier.Verify(body, signature, timestamp); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for wrong secret, got %v", err)
	}
}

func TestVerifyMissingHeaders(t *testing.T) {
	verifier := newTestVerifier("shared-secret", 300*time.Second)
	body := []byte(`{}`)

	if err := verifier.Verify(body, "", "123"); !errors.Is(err, ErrMissingHeaders) {
		t.Errorf("Expected ErrMissingHeaders for empty signature, got %v", err)
	}
	if err := verifier.Verify(body, "abc", ""); !errors.Is(err, ErrMissingHeaders) {
		t.Errorf("Expected ErrMissingHeaders for empty timestamp, got %v", err)
	}
	if err := verifier.Verify(body, "abc", "not-a-number"); !errors.Is(err, ErrMissingHeaders) {
		t.Errorf("Expected ErrMissingHeaders for garbage timestamp, got %v", err)
	}
}

func TestVerifyExpiredTimestamp(t *testing.T) {
	verifier := newTestVerifier("shared-secret", 300*time.Second)

	body := []byte(`{"job_id":"ext_1"}`)
	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).UnixMilli(), 10)
	signature := verifier.Sign(body, stale)

	// Correct signature, stale timestamp: freshness wins
	if err := verifier.Verify(body, signature, stale); !errors.Is(err, ErrTimestampExpired) {
		t.Errorf("Expected ErrTimestampExpired, got %v", err)
	}
}

func TestVerifyFutureTimestampRejected(t *testing.T) {
	verifier := newTestVerifier("shared-secret", 300*time.Second)

	body := []byte(`{"job_id":"ext_1"}`)
	future := strconv.FormatInt(time.Now().Add(10*time.Minute).UnixMilli(), 10)
	signature := verifier.Sign(body, future)

	if err := verifier.Verify(body, signature, future); !errors.Is(err, ErrTimestampExpired) {
		t.Errorf("Expected ErrTimestampExpired for future timestamp, got %v", err)
	}
}

func TestVerifyWindowBoundary(t *testing.T) {
	verifier := newTestVerifier("shared-secret", 300*time.Second)
	fixed := time.Now()
	verifier.now = func() time.Time { return fixed }

	body := []byte(`{"job_id":"ext_1"}`)

	inside := strconv.FormatInt(fixed.Add(-299*time.Second).UnixMilli(), 10)
	if err := verifier.Verify(body, verifier.Sign(body, inside), inside); err != nil {
		t.Errorf("Expected timestamp inside window to verify, got %v", err)
	}

	outside := strconv.FormatInt(fixed.Add(-301*time.Second).UnixMilli(), 10)
	if err := verifier.Verify(body, verifier.Sign(body, outside), outside); !errors.Is(err, ErrTimestampExpired) {
		t.Errorf("Expected timestamp outside window to fail, got %v", err)
	}
}
