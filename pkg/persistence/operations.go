package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"assistant/pkg/proto"
)

// DatabaseOperations bundles the query layer over the singleton connection.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates an operations instance over the given
// connection. Most callers should use Ops().
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// CycleRecord is one completed monitor cycle.
type CycleRecord struct {
	ID             int64     `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Outcome        string    `json:"outcome"`
	NewItems       int       `json:"new_items"`
	Conflicts      int       `json:"conflicts"`
	FallbackScores int       `json:"fallback_scores"`
	Error          string    `json:"error,omitempty"`
}

// RecordCycle appends one cycle to history.
func (o *DatabaseOperations) RecordCycle(rec CycleRecord) error {
	_, err := o.db.Exec(
		`INSERT INTO cycles (started_at, finished_at, outcome, new_items, conflicts, fallback_scores, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.StartedAt, rec.FinishedAt, rec.Outcome, rec.NewItems, rec.Conflicts, rec.FallbackScores,
		nullableString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the latest cycles, newest first.
func (o *DatabaseOperations) RecentCycles(limit int) ([]CycleRecord, error) {
	rows, err := o.db.Query(
		`SELECT id, started_at, finished_at, outcome, new_items, conflicts, fallback_scores, COALESCE(error, '')
		 FROM cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.FinishedAt, &rec.Outcome,
			&rec.NewItems, &rec.Conflicts, &rec.FallbackScores, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InteractionRecord is one dialogue turn's transcript.
type InteractionRecord struct {
	ID         string    `json:"id"`
	OpenedAt   time.Time `json:"opened_at"`
	Deadline   time.Time `json:"deadline"`
	Status     string    `json:"status"`
	Prompt     string    `json:"prompt"`
	RawReply   string    `json:"raw_reply,omitempty"`
	IntentKind string    `json:"intent_kind,omitempty"`
}

// RecordInteraction upserts an interaction transcript. Called once when the
// turn opens and again when it reaches a terminal status.
func (o *DatabaseOperations) RecordInteraction(rec InteractionRecord) error {
	_, err := o.db.Exec(
		`INSERT INTO interactions (id, opened_at, deadline, status, prompt, raw_reply, intent_kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status,
			raw_reply = excluded.raw_reply, intent_kind = excluded.intent_kind`,
		rec.ID, rec.OpenedAt, rec.Deadline, rec.Status, rec.Prompt,
		nullableString(rec.RawReply), nullableString(rec.IntentKind),
	)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns the latest interactions, newest first.
func (o *DatabaseOperations) RecentInteractions(limit int) ([]InteractionRecord, error) {
	rows, err := o.db.Query(
		`SELECT id, opened_at, deadline, status, prompt, COALESCE(raw_reply, ''), COALESCE(intent_kind, '')
		 FROM interactions ORDER BY opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var out []InteractionRecord
	for rows.Next() {
		var rec InteractionRecord
		if err := rows.Scan(&rec.ID, &rec.OpenedAt, &rec.Deadline, &rec.Status,
			&rec.Prompt, &rec.RawReply, &rec.IntentKind); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordExecution appends an execution outcome tied to its interaction.
func (o *DatabaseOperations) RecordExecution(interactionID string, kind proto.IntentKind, succeeded bool, detail string, executedAt time.Time) error {
	_, err := o.db.Exec(
		`INSERT INTO executions (interaction_id, executed_at, intent_kind, succeeded, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		interactionID, executedAt, string(kind), boolToInt(succeeded), detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// DailyBrief summarizes one day of agent activity.
type DailyBrief struct {
	Date         string `json:"date"`
	Cycles       int    `json:"cycles"`
	FailedCycles int    `json:"failed_cycles"`
	NewItems     int    `json:"new_items"`
	Conflicts    int    `json:"conflicts"`
	Interactions int    `json:"interactions"`
	Executions   int    `json:"executions"`
}

// BriefFor aggregates activity for the given day (UTC).
func (o *DatabaseOperations) BriefFor(day time.Time) (DailyBrief, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	brief := DailyBrief{Date: start.Format("2006-01-02")}

	err := o.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome != 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(new_items), 0),
			COALESCE(SUM(conflicts), 0)
		 FROM cycles WHERE started_at >= ? AND started_at < ?`, start, end,
	).Scan(&brief.Cycles, &brief.FailedCycles, &brief.NewItems, &brief.Conflicts)
	if err != nil {
		return brief, fmt.Errorf("failed to aggregate cycles: %w", err)
	}

	err = o.db.QueryRow(
		`SELECT COUNT(*) FROM interactions WHERE opened_at >= ? AND opened_at < ?`, start, end,
	).Scan(&brief.Interactions)
	if err != nil {
		return brief, fmt.Errorf("failed to count interactions: %w", err)
	}

	err = o.db.QueryRow(
		`SELECT COUNT(*) FROM executions WHERE executed_at >= ? AND executed_at < ?`, start, end,
	).Scan(&brief.Executions)
	if err != nil {
		return brief, fmt.Errorf("failed to count executions: %w", err)
	}

	return brief, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
