package decision

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const createAuditTable = `CREATE TABLE IF NOT EXISTS decision_audit (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	tier TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	message TEXT NOT NULL,
	decided_at TIMESTAMPTZ NOT NULL
)`

const insertAuditRecord = `INSERT INTO decision_audit (user_id, session_id, tier, confidence_score, message, decided_at) VALUES ($1, $2, $3, $4, $5, $6)`

// Record is one audited decision.
type Record struct {
	UserID          string
	SessionID       string
	Tier            Tier
	ConfidenceScore float64
	Message         string
	DecidedAt       time.Time
}

// AuditStore persists decisions.
type AuditStore interface {
	Record(ctx context.Context, r Record) error
}

type PostgresAuditStore struct {
	db *sql.DB
}

func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

// EnsureSchema creates the audit table when missing.
func (s *PostgresAuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAuditTable); err != nil {
		return fmt.Errorf("create decision_audit: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) Record(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, insertAuditRecord,
		r.UserID, r.SessionID, string(r.Tier), r.ConfidenceScore, r.Message, r.DecidedAt)
	if err != nil {
		return fmt.Errorf("insert decision audit: %w", err)
	}
	return nil
}
