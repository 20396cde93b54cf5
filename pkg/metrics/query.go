package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// UsageSummary aggregates agent activity over a window, computed from a
// Prometheus server scraping the /metrics endpoint.
type UsageSummary struct {
	Window          string  `json:"window"`
	CyclesOK        int64   `json:"cycles_ok"`
	CyclesError     int64   `json:"cycles_error"`
	OracleRequests  int64   `json:"oracle_requests"`
	OracleErrors    int64   `json:"oracle_errors"`
	FallbackScores  int64   `json:"fallback_scores"`
	Conflicts       int64   `json:"conflicts"`
	ActionsExecuted int64   `json:"actions_executed"`
	CycleP95Seconds float64 `json:"cycle_p95_seconds"`
}

// QueryService answers usage queries against an external Prometheus that
// scrapes the assistant.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a usage query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// Usage aggregates agent activity over the trailing window.
func (q *QueryService) Usage(ctx context.Context, window time.Duration) (*UsageSummary, error) {
	w := model.Duration(window).String()
	summary := &UsageSummary{Window: w}

	counters := []struct {
		dest  *int64
		query string
	}{
		{&summary.CyclesOK, fmt.Sprintf(`sum(increase(assistant_cycles_total{outcome="ok"}[%s]))`, w)},
		{&summary.CyclesError, fmt.Sprintf(`sum(increase(assistant_cycles_total{outcome="error"}[%s]))`, w)},
		{&summary.OracleRequests, fmt.Sprintf(`sum(increase(assistant_oracle_requests_total[%s]))`, w)},
		{&summary.OracleErrors, fmt.Sprintf(`sum(increase(assistant_oracle_requests_total{status!="ok"}[%s]))`, w)},
		{&summary.FallbackScores, fmt.Sprintf(`sum(increase(assistant_fallback_scores_total[%s]))`, w)},
		{&summary.Conflicts, fmt.Sprintf(`sum(increase(assistant_conflicts_detected_total[%s]))`, w)},
		{&summary.ActionsExecuted, fmt.Sprintf(`sum(increase(assistant_actions_executed_total[%s]))`, w)},
	}

	for _, c := range counters {
		value, err := q.scalar(ctx, c.query)
		if err != nil {
			return nil, err
		}
		*c.dest = int64(value)
	}

	p95Query := fmt.Sprintf(`histogram_quantile(0.95, sum(rate(assistant_cycle_duration_seconds_bucket[%s])) by (le))`, w)
	p95, err := q.scalar(ctx, p95Query)
	if err != nil {
		return nil, err
	}
	summary.CycleP95Seconds = p95

	return summary, nil
}

// OracleErrorsByType breaks oracle failures in the window down by the
// classified error type.
func (q *QueryService) OracleErrorsByType(ctx context.Context, window time.Duration) (map[string]int64, error) {
	w := model.Duration(window).String()
	query := fmt.Sprintf(`sum(increase(assistant_oracle_requests_total{status!="ok"}[%s])) by (status)`, w)

	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query oracle errors: %w", err)
	}

	out := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if status, ok := sample.Metric["status"]; ok {
				out[string(status)] = int64(sample.Value)
			}
		}
	}
	return out, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query %q: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
