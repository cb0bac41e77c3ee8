package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

var (
	// ErrMissingHeaders indicates the signature or timestamp header was absent.
	ErrMissingHeaders = errors.New("missing signature or timestamp header")
	// ErrInvalidSignature indicates the signature did not match the payload.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrTimestampExpired indicates the timestamp fell outside the replay window.
	ErrTimestampExpired = errors.New("webhook timestamp outside allowed window")
)

// DefaultMaxAge bounds the replay window for inbound webhooks.
const DefaultMaxAge = 300 * time.Second

// Verifier checks inbound webhook authenticity and freshness. Verification
// runs before any job lookup so a rejected request never reveals whether
// the referenced job exists.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	logger arbor.ILogger

	// now is swappable for tests
	now func() time.Time
}

// NewVerifier creates a verifier with the given shared secret.
func NewVerifier(secret string, maxAge time.Duration, logger arbor.ILogger) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{
		secret: []byte(secret),
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Verify validates the signature and timestamp headers against the raw
// request body. The signature is HMAC-SHA256 over "{timestamp}." + body,
// hex-encoded; comparison is constant-time. The timestamp header is epoch
// milliseconds and must fall within the replay window in either direction.
func (v *Verifier) Verify(rawBody []byte, signatureHeader, timestampHeader string) error {
	if signatureHeader == "" || timestampHeader == "" {
		v.logger.Warn().Msg("Webhook rejected: missing signature or timestamp header")
		return ErrMissingHeaders
	}

	millis, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		v.logger.Warn().Str("timestamp", timestampHeader).Msg("Webhook rejected: unparseable timestamp")
		return ErrMissingHeaders
	}

	// Freshness first: an expired request is rejected even if the
	// signature would verify
	sent := time.UnixMilli(millis)
	drift := v.now().Sub(sent)
	if drift < 0 {
		drift = -drift
	}
	if drift > v.maxAge {
		v.logger.Warn().
			Str("timestamp", timestampHeader).
			Str("drift", drift.String()).
			Msg("Webhook rejected: timestamp outside replay window")
		return ErrTimestampExpired
	}

	expected := v.Sign(rawBody, timestampHeader)
	provided := strings.ToLower(strings.TrimPrefix(signatureHeader, "sha256="))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		v.logger.Warn().Msg("Webhook rejected: signature mismatch")
		return ErrInvalidSignature
	}

	return nil
}

// Sign computes the lowercase hex HMAC-SHA256 signature for a
// (timestamp, body) pair. Exposed for outbound use and test fixtures.
func (v *Verifier) Sign(rawBody []byte, timestamp string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
