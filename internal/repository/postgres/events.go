package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/campaign-core/internal/domain"
)

// EventRepo stores the append-only email event log. It implements
// analytics.Repository and analytics.Sink.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// eventBatchSize bounds the rows per INSERT statement.
const eventBatchSize = 500

// Append inserts events, skipping IDs already stored. It returns the number
// of rows actually inserted.
func (r *EventRepo) Append(ctx context.Context, events []domain.EmailEvent) (int, error) {
	inserted := 0
	for start := 0; start < len(events); start += eventBatchSize {
		end := start + eventBatchSize
		if end > len(events) {
			end = len(events)
		}
		n, err := r.appendBatch(ctx, events[start:end])
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (r *EventRepo) appendBatch(ctx context.Context, batch []domain.EmailEvent) (int, error) {
	var b strings.Builder
	b.WriteString(`INSERT INTO email_events (id, client_id, campaign_id, contact_email, event_type, occurred_at, error_message) VALUES `)
	args := make([]interface{}, 0, len(batch)*7)
	for i, e := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		p := i * 7
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, NULLIF($%d,''))", p+1, p+2, p+3, p+4, p+5, p+6, p+7)
		args = append(args, e.ID, e.ClientID, e.CampaignID, e.ContactEmail, string(e.EventType), e.Timestamp, e.ErrorMessage)
	}
	b.WriteString(` ON CONFLICT (id) DO NOTHING`)

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("append events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("append events: %w", err)
	}
	return int(n), nil
}

func (r *EventRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.EmailEvent, error) {
	return r.list(ctx, `WHERE campaign_id = $1`, campaignID)
}

func (r *EventRepo) ListByClient(ctx context.Context, clientID string) ([]domain.EmailEvent, error) {
	return r.list(ctx, `WHERE client_id = $1`, clientID)
}

// ListByCampaigns returns the events of several campaigns in one query.
func (r *EventRepo) ListByCampaigns(ctx context.Context, campaignIDs []string) ([]domain.EmailEvent, error) {
	return r.list(ctx, `WHERE campaign_id = ANY($1)`, pq.Array(campaignIDs))
}

func (r *EventRepo) list(ctx context.Context, where string, arg interface{}) ([]domain.EmailEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, campaign_id, contact_email, event_type, occurred_at, COALESCE(error_message,'')
		FROM email_events
		`+where+`
		ORDER BY occurred_at, id
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailEvent
	for rows.Next() {
		var e domain.EmailEvent
		var typ string
		if err := rows.Scan(&e.ID, &e.ClientID, &e.CampaignID, &e.ContactEmail, &typ, &e.Timestamp, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventType = domain.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
