// Package scoring turns raw monitored items into Analysis values. The
// primary path asks the oracle for a structured judgment; a deterministic
// keyword fallback covers every oracle failure, so scoring never fails
// outward.
package scoring

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"assistant/pkg/logx"
	"assistant/pkg/metrics"
	"assistant/pkg/oracle"
	"assistant/pkg/proto"
)

// Engine scores monitored items. A nil oracle client means fallback-only
// operation.
type Engine struct {
	client  oracle.Client
	logger  *logx.Logger
	workers int
}

// NewEngine creates a scoring engine with the given worker cap for batch
// scoring.
func NewEngine(client oracle.Client, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		client:  client,
		logger:  logx.NewLogger("scoring"),
		workers: workers,
	}
}

// Score produces an Analysis for one item. It always returns a value: any
// oracle failure, including a malformed reply, drops to the keyword
// fallback in isolation.
func (e *Engine) Score(ctx context.Context, item *proto.MonitoredItem) proto.Analysis {
	now := time.Now()
	metrics.ItemsScored.WithLabelValues(string(item.Source)).Inc()

	if e.client == nil {
		metrics.FallbackScores.Inc()
		return FallbackScore(item, now)
	}

	req := oracle.NewRequest(scoreSystemPrompt, buildScorePrompt(item))
	resp, err := e.client.Complete(ctx, req)
	if err == nil {
		analysis, parseErr := parseAnalysis(resp.Content, now)
		if parseErr == nil {
			metrics.OracleRequests.WithLabelValues(e.client.ModelName(), "ok").Inc()
			return analysis
		}
		err = parseErr
	}

	metrics.OracleRequests.WithLabelValues(e.client.ModelName(), "error").Inc()
	metrics.FallbackScores.Inc()
	e.logger.Warn("Oracle scoring failed for item %s, using fallback: %v", item.ID, err)
	return FallbackScore(item, now)
}

// ScoreBatch scores items concurrently with a bounded worker pool and
// writes each Analysis onto its item. One item's failure never affects the
// others; the call returns only after every item is scored.
func (e *Engine) ScoreBatch(ctx context.Context, items []*proto.MonitoredItem) {
	if len(items) == 0 {
		return
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item *proto.MonitoredItem) {
			defer wg.Done()
			defer func() { <-sem }()
			analysis := e.Score(ctx, item)
			item.Analysis = &analysis
		}(item)
	}
	wg.Wait()
}

// rawAnalysis mirrors the oracle's JSON contract with pointer fields so a
// missing key is distinguishable from a zero value.
type rawAnalysis struct {
	ImportanceScore *float64 `json:"importance_score"`
	RequiresAction  *bool    `json:"requires_action"`
	ActionType      *string  `json:"action_type"`
	Urgency         *string  `json:"urgency"`
	Summary         *string  `json:"summary"`
	SuggestedAction *string  `json:"suggested_action"`
}

// parseAnalysis strictly validates an oracle reply. Any field outside the
// contract fails the whole reply; there is no partial acceptance.
func parseAnalysis(content string, now time.Time) (proto.Analysis, error) {
	payload := extractJSON(content)
	if payload == "" {
		return proto.Analysis{}, oracle.NewError(oracle.ErrorTypeMalformed, "reply contains no JSON object")
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return proto.Analysis{}, oracle.WrapError(oracle.ErrorTypeMalformed, "reply is not valid JSON", err)
	}

	if raw.ImportanceScore == nil || raw.RequiresAction == nil || raw.Urgency == nil || raw.Summary == nil {
		return proto.Analysis{}, oracle.NewError(oracle.ErrorTypeMalformed, "reply is missing required fields")
	}
	if !proto.ValidUrgency(*raw.Urgency) {
		return proto.Analysis{}, oracle.NewError(oracle.ErrorTypeMalformed, "reply has unknown urgency "+*raw.Urgency)
	}

	actionType := proto.ActionNone
	if raw.ActionType != nil && *raw.ActionType != "" {
		if !proto.ValidActionType(*raw.ActionType) {
			return proto.Analysis{}, oracle.NewError(oracle.ErrorTypeMalformed, "reply has unknown action_type "+*raw.ActionType)
		}
		actionType = proto.ActionType(*raw.ActionType)
	}

	suggested := ""
	if raw.SuggestedAction != nil {
		suggested = *raw.SuggestedAction
	}

	return proto.Analysis{
		ImportanceScore: clamp01(*raw.ImportanceScore),
		RequiresAction:  *raw.RequiresAction,
		ActionType:      actionType,
		Urgency:         proto.Urgency(*raw.Urgency),
		Summary:         *raw.Summary,
		SuggestedAction: suggested,
		AnalyzedAt:      now,
	}, nil
}

// extractJSON pulls the outermost JSON object out of a reply, tolerating
// markdown fences and prose around it.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
