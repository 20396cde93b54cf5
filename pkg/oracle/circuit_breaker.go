package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"assistant/pkg/logx"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

// Circuit breaker states for managing oracle failure patterns.
const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, reject requests
	CircuitHalfOpen                     // Testing if service recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold   int           // Number of failures before opening circuit
	SuccessThreshold   int           // Number of successes to close circuit from half-open
	Timeout            time.Duration // Time to wait before trying half-open
	MaxConcurrentCalls int           // Maximum concurrent calls in half-open state
}

// DefaultCircuitBreakerConfig provides reasonable defaults.
//
//nolint:gochecknoglobals
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	FailureThreshold:   5,
	SuccessThreshold:   3,
	Timeout:            30 * time.Second,
	MaxConcurrentCalls: 3,
}

// CircuitBreakerError represents an error when circuit is open.
type CircuitBreakerError struct {
	State CircuitState
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// CircuitBreakerClient wraps a Client with the circuit breaker pattern.
// An open circuit fails fast, which lets the scoring engine fall back to
// keyword scoring immediately instead of waiting out a dead oracle.
type CircuitBreakerClient struct {
	client          Client
	logger          *logx.Logger
	lastFailureTime time.Time
	config          CircuitBreakerConfig
	mu              sync.RWMutex
	state           CircuitState
	failureCount    int
	successCount    int
	halfOpenCalls   int
}

// NewCircuitBreakerClient creates a new circuit breaker oracle client.
func NewCircuitBreakerClient(client Client, config CircuitBreakerConfig) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		client: client,
		config: config,
		state:  CircuitClosed,
		logger: logx.NewLogger("oracle-breaker"),
	}
}

// Complete implements Client with circuit breaker logic.
func (cb *CircuitBreakerClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := cb.allowRequest(); err != nil {
		return Response{}, err
	}

	resp, err := cb.client.Complete(ctx, req)
	cb.recordResult(err == nil)

	if err != nil {
		return resp, fmt.Errorf("oracle complete request failed: %w", err)
	}
	return resp, nil
}

// ModelName delegates to the underlying client.
func (cb *CircuitBreakerClient) ModelName() string {
	return cb.client.ModelName()
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreakerClient) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetFailureCount returns the current failure count.
func (cb *CircuitBreakerClient) GetFailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreakerClient) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

// allowRequest checks if a request should be allowed based on current state.
func (cb *CircuitBreakerClient) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.Timeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenCalls = 0
			cb.successCount = 0
			return nil
		}
		return &CircuitBreakerError{State: CircuitOpen}

	case CircuitHalfOpen:
		if cb.halfOpenCalls >= cb.config.MaxConcurrentCalls {
			return &CircuitBreakerError{State: CircuitHalfOpen}
		}
		cb.halfOpenCalls++
		return nil

	default:
		return &CircuitBreakerError{State: cb.state}
	}
}

// recordResult records the success or failure of a request.
func (cb *CircuitBreakerClient) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.halfOpenCalls--
	}

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

// onSuccess handles a successful request.
func (cb *CircuitBreakerClient) onSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0

	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.logger.Info("Circuit breaker CLOSED after %d successes", cb.config.SuccessThreshold)
		}
	}
}

// onFailure handles a failed request.
func (cb *CircuitBreakerClient) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
			cb.logger.Warn("Circuit breaker OPENED after %d failures (threshold: %d)",
				cb.failureCount, cb.config.FailureThreshold)
		}

	case CircuitHalfOpen:
		// Any failure in half-open immediately opens the circuit.
		cb.state = CircuitOpen
		cb.successCount = 0
		cb.logger.Warn("Circuit breaker OPENED immediately from HALF_OPEN state")
	}
}

// NewResilientClient layers retry over a circuit breaker. The breaker sits
// inside so breaker rejections are not themselves retried.
func NewResilientClient(baseClient Client) Client {
	cbClient := NewCircuitBreakerClient(baseClient, DefaultCircuitBreakerConfig)

	retryConfig := DefaultRetryConfig
	retryConfig.MaxRetries = 2 // Reduce retries when using circuit breaker

	return NewRetryableClient(cbClient, retryConfig)
}
