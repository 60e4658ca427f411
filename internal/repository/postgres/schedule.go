package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/service/schedule"
)

// ScheduleRepo implements schedule.Repository against PostgreSQL.
type ScheduleRepo struct{ db *sql.DB }

// NewScheduleRepo creates a Postgres-backed schedule repository.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleColumns = `
	id, campaign_id, client_id, frequency,
	COALESCE(time_of_day,''), COALESCE(timezone,''), days_of_week, day_of_month,
	COALESCE(cron_expression,''), start_date, end_date, last_fired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (domain.RuleInput, error) {
	var (
		in       domain.RuleInput
		days     pq.Int64Array
		dom      sql.NullInt64
		start    sql.NullTime
		end      sql.NullTime
		lastFire sql.NullTime
	)
	err := row.Scan(
		&in.ID, &in.CampaignID, &in.ClientID, &in.Frequency,
		&in.TimeOfDay, &in.Timezone, &days, &dom,
		&in.CronExpression, &start, &end, &lastFire,
	)
	if err != nil {
		return domain.RuleInput{}, err
	}
	for _, d := range days {
		in.DaysOfWeek = append(in.DaysOfWeek, int(d))
	}
	if dom.Valid {
		n := int(dom.Int64)
		in.DayOfMonth = &n
	}
	in.StartDate = nullTimePtr(start)
	in.EndDate = nullTimePtr(end)
	in.LastFiredAt = nullTimePtr(lastFire)
	return in, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *ScheduleRepo) Get(ctx context.Context, id string) (domain.RuleInput, error) {
	in, err := scanRule(r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM campaign_schedules WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RuleInput{}, schedule.ErrNotFound
	}
	if err != nil {
		return domain.RuleInput{}, fmt.Errorf("get schedule: %w", err)
	}
	return in, nil
}

func (r *ScheduleRepo) GetByCampaign(ctx context.Context, campaignID string) (domain.RuleInput, error) {
	in, err := scanRule(r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM campaign_schedules WHERE campaign_id = $1`, campaignID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RuleInput{}, schedule.ErrNotFound
	}
	if err != nil {
		return domain.RuleInput{}, fmt.Errorf("get schedule by campaign: %w", err)
	}
	return in, nil
}

// Save upserts on campaign_id. The stored id and last_fired_at survive an
// update so editing a rule never re-arms a slot that already fired.
func (r *ScheduleRepo) Save(ctx context.Context, in domain.RuleInput) (string, error) {
	days := make(pq.Int64Array, 0, len(in.DaysOfWeek))
	for _, d := range in.DaysOfWeek {
		days = append(days, int64(d))
	}
	var dom sql.NullInt64
	if in.DayOfMonth != nil {
		dom = sql.NullInt64{Int64: int64(*in.DayOfMonth), Valid: true}
	}

	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO campaign_schedules (
			id, campaign_id, client_id, frequency, time_of_day, timezone,
			days_of_week, day_of_month, cron_expression, start_date, end_date
		) VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7, $8, NULLIF($9,''), $10, $11)
		ON CONFLICT (campaign_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			frequency = EXCLUDED.frequency,
			time_of_day = EXCLUDED.time_of_day,
			timezone = EXCLUDED.timezone,
			days_of_week = EXCLUDED.days_of_week,
			day_of_month = EXCLUDED.day_of_month,
			cron_expression = EXCLUDED.cron_expression,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			updated_at = NOW()
		RETURNING id
	`, in.ID, in.CampaignID, in.ClientID, in.Frequency, in.TimeOfDay, in.Timezone,
		days, dom, in.CronExpression, in.StartDate, in.EndDate,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save schedule: %w", err)
	}
	return id, nil
}

func (r *ScheduleRepo) ListActive(ctx context.Context, now time.Time) ([]domain.RuleInput, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM campaign_schedules
		WHERE frequency <> 'NONE'
		  AND (end_date IS NULL OR end_date >= $1)
		ORDER BY id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.RuleInput
	for rows.Next() {
		in, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// StampFired only ever moves last_fired_at forward, so a slow worker can't
// rewind a rule another worker already advanced.
func (r *ScheduleRepo) StampFired(ctx context.Context, id string, slot time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_schedules
		SET last_fired_at = $2, updated_at = NOW()
		WHERE id = $1 AND (last_fired_at IS NULL OR last_fired_at < $2)
	`, id, slot)
	if err != nil {
		return fmt.Errorf("stamp fired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stamp fired: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaign_schedules WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("stamp fired: %w", err)
	}
	if !exists {
		return schedule.ErrNotFound
	}
	return schedule.ErrStaleFireTime
}
