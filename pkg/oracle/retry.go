package oracle

import (
	"context"
	"fmt"
	"math"
	"time"

	"assistant/pkg/logx"
)

// RetryableClient wraps a Client with error-type-aware retry logic.
type RetryableClient struct {
	client Client
	logger *logx.Logger
	config RetryConfig
}

// NewRetryableClient creates a new retryable oracle client.
func NewRetryableClient(client Client, config RetryConfig) *RetryableClient {
	return &RetryableClient{
		client: client,
		config: config,
		logger: logx.NewLogger("oracle-retry"),
	}
}

// Complete implements Client with retry logic.
func (r *RetryableClient) Complete(ctx context.Context, req Request) (Response, error) {
	var lastErr *Error
	retryConfig := r.config
	startTime := time.Now()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := calculateDelay(attempt, retryConfig)

			select {
			case <-ctx.Done():
				return Response{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptStart := time.Now()
		resp, err := r.client.Complete(ctx, req)
		attemptDuration := time.Since(attemptStart)

		if err == nil {
			if attempt > 0 {
				r.logger.Debug("Completion succeeded after %d retries in %v", attempt, attemptDuration)
			}
			return resp, nil
		}

		lastErr = Classify(err)
		retryConfig = retryConfigFor(lastErr.Type)

		isFinalAttempt := !lastErr.IsRetryable() || attempt >= retryConfig.MaxRetries
		r.logger.Debug("Attempt %d failed in %v (%s), final=%v: %v",
			attempt, attemptDuration, lastErr.Type, isFinalAttempt, err)

		if isFinalAttempt {
			break
		}
	}

	totalDuration := time.Since(startTime)
	return Response{}, fmt.Errorf("failed after %d retries (%s) in %v: %w",
		retryConfig.MaxRetries, lastErr.Type, totalDuration, lastErr)
}

// ModelName delegates to the underlying client.
func (r *RetryableClient) ModelName() string {
	return r.client.ModelName()
}

// calculateDelay computes the delay for the given retry attempt.
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	if attempt == 0 {
		return 0
	}

	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt-1)))

	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.Jitter {
		jitterFactor := (2*time.Now().UnixNano()%2 - 1) // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = config.InitialDelay
		}
	}

	return delay
}
