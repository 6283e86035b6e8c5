package audit

import (
	"database/sql"
	"fmt"
	"time"
)

// PostgresLogger writes audit events to the audit_events table. Only the
// audit trail goes to the database; users and posts stay in memory.
type PostgresLogger struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewPostgresLogger(db *sql.DB) (*PostgresLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	l := &PostgresLogger{db: db, nowFunc: time.Now}
	if err := l.ensureSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PostgresLogger) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	at TIMESTAMPTZ NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
)`
	if _, err := l.db.Exec(q); err != nil {
		return fmt.Errorf("ensure audit_events schema: %w", err)
	}
	return nil
}

func (l *PostgresLogger) Log(actor, action, target, outcome, detail string) error {
	const q = `
INSERT INTO audit_events (at, actor, action, target, outcome, detail)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := l.db.Exec(q, l.nowFunc().UTC(), actor, action, target, outcome, detail); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
