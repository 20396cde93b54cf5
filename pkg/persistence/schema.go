package persistence

import (
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	outcome TEXT NOT NULL,
	new_items INTEGER NOT NULL DEFAULT 0,
	conflicts INTEGER NOT NULL DEFAULT 0,
	fallback_scores INTEGER NOT NULL DEFAULT 0,
	error TEXT
);

CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	opened_at TIMESTAMP NOT NULL,
	deadline TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	prompt TEXT NOT NULL,
	raw_reply TEXT,
	intent_kind TEXT
);

CREATE TABLE IF NOT EXISTS executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	interaction_id TEXT NOT NULL,
	executed_at TIMESTAMP NOT NULL,
	intent_kind TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	detail TEXT NOT NULL,
	FOREIGN KEY (interaction_id) REFERENCES interactions(id)
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	provider TEXT PRIMARY KEY,
	ciphertext BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_interactions_opened ON interactions(opened_at);
`

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
