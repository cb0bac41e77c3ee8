package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the insight engine API.
	DefaultBaseURL = "https://api.insight.example.com"

	// DefaultTimeout is the default per-call HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10

	// maxResponseBody bounds how much of a response is read into memory.
	maxResponseBody = 10 * 1024 * 1024
)

// Client is the insight engine API client. It implements
// interfaces.JobClient and wraps every call in a per-(endpoint, tenant)
// circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	breakers   *breakerRegistry
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithBreakerConfig tunes the circuit breakers.
func WithBreakerConfig(config BreakerConfig) ClientOption {
	return func(c *Client) {
		c.breakers = newBreakerRegistry(config, c.logger)
	}
}

// NewClient creates a new insight engine client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.breakers == nil {
		c.breakers = newBreakerRegistry(DefaultBreakerConfig(), c.logger)
	}

	return c
}

var _ interfaces.JobClient = (*Client)(nil)

// Submit sends a new job to the engine and returns the engine-assigned
// correlation ID.
func (c *Client) Submit(ctx context.Context, kind models.JobKind, tenantID string, payload map[string]interface{}) (string, error) {
	endpoint, err := endpointForKind(kind)
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"tenant_id": tenantID,
		"input":     payload,
	}

	envelope, err := c.do(ctx, http.MethodPost, endpoint, tenantID, body)
	if err != nil {
		return "", err
	}

	externalID := envelope.externalID()
	if externalID == "" {
		return "", fmt.Errorf("submit response missing job_id for %s", endpoint)
	}
	return externalID, nil
}

// GetStatus polls the engine for the job's current state, normalized to
// processing / completed / failed.
func (c *Client) GetStatus(ctx context.Context, kind models.JobKind, tenantID, externalID string) (*models.UpstreamStatus, error) {
	endpoint, err := endpointForKind(kind)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/%s/status", endpoint, externalID)
	envelope, err := c.do(ctx, http.MethodGet, path, tenantID, nil)
	if err != nil {
		return nil, err
	}

	state, err := NormalizeState(envelope.Status)
	if err != nil {
		return nil, err
	}

	status := &models.UpstreamStatus{State: state}
	if state == models.UpstreamFailed && envelope.Error != nil {
		detail := parseErrorDetail(envelope.Error)
		status.Error = &models.JobError{
			Code:      detail.ErrorCode,
			Message:   detail.Message,
			Retryable: detail.Retryable,
		}
	}
	return status, nil
}

// GetResult fetches the raw result payload of a completed job.
func (c *Client) GetResult(ctx context.Context, kind models.JobKind, tenantID, externalID string) (map[string]interface{}, error) {
	endpoint, err := endpointForKind(kind)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/%s/result", endpoint, externalID)
	envelope, err := c.do(ctx, http.MethodGet, path, tenantID, nil)
	if err != nil {
		return nil, err
	}

	payload := envelope.payload()
	if payload == nil {
		return nil, fmt.Errorf("result response missing payload for %s", path)
	}
	return payload, nil
}

// do executes a request through the rate limiter and the (endpoint,
// tenant) circuit breaker; non-2xx and success:false responses become
// typed APIErrors the breaker counts as failures.
func (c *Client) do(ctx context.Context, method, path, tenantID string, body interface{}) (*responseEnvelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	breaker := c.breakers.get(path, tenantID)
	return breaker.Execute(func() (*responseEnvelope, error) {
		return c.roundTrip(ctx, method, path, tenantID, body)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, path, tenantID string, body interface{}) (*responseEnvelope, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Str("tenant_id", tenantID).
			Msg("Insight API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope responseEnvelope
	if len(data) > 0 {
		// Tolerate unparseable bodies on error statuses; the status code
		// alone is enough to classify those.
		if err := json.Unmarshal(data, &envelope); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Success {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   path,
			Detail:     parseErrorDetail(envelope.Error),
		}
	}

	return &envelope, nil
}
