package insight

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/ternarybob/arbor"
)

// BreakerConfig tunes the per-(endpoint, tenant) circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker short-circuits calls before
	// allowing a probe request through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// breakerRegistry lazily creates one circuit breaker per (endpoint,
// tenant) pair so one failing tenant or endpoint cannot starve the rest.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*responseEnvelope]
	config   BreakerConfig
	logger   arbor.ILogger
}

func newBreakerRegistry(config BreakerConfig, logger arbor.ILogger) *breakerRegistry {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &breakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker[*responseEnvelope]),
		config:   config,
		logger:   logger,
	}
}

func (r *breakerRegistry) get(endpoint, tenantID string) *gobreaker.CircuitBreaker[*responseEnvelope] {
	key := endpoint + "|" + tenantID

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	threshold := uint32(r.config.FailureThreshold)
	cb := gobreaker.NewCircuitBreaker[*responseEnvelope](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     r.config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if r.logger != nil {
				r.logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			}
		},
	})
	r.breakers[key] = cb
	return cb
}
