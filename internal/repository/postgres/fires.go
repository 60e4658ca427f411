package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FireLog records dispatched fires keyed by idempotency key.
type FireLog struct{ db *sql.DB }

// NewFireLog creates a Postgres-backed fire log.
func NewFireLog(db *sql.DB) *FireLog { return &FireLog{db: db} }

// Record inserts a fire. It reports false when the key was already
// recorded, which means another worker dispatched the same slot.
func (l *FireLog) Record(ctx context.Context, key, ruleID, campaignID string, slot time.Time) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO schedule_fires (idempotency_key, rule_id, campaign_id, slot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, ruleID, campaignID, slot)
	if err != nil {
		return false, fmt.Errorf("record fire: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record fire: %w", err)
	}
	return n == 1, nil
}
