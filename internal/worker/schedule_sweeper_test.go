package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/pkg/distlock"
	"github.com/ignite/campaign-core/internal/pkg/httpretry"
	"github.com/ignite/campaign-core/internal/repository/postgres"
	"github.com/ignite/campaign-core/internal/service/schedule"
)

// =============================================================================
// FAKES
// =============================================================================

type memStore struct {
	mu      sync.Mutex
	rules   []domain.RuleInput
	listErr error
}

func (m *memStore) ListActive(context.Context, time.Time) ([]domain.RuleInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.RuleInput(nil), m.rules...), nil
}

func (m *memStore) StampFired(_ context.Context, id string, slot time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID != id {
			continue
		}
		if last := m.rules[i].LastFiredAt; last != nil && !slot.After(*last) {
			return schedule.ErrStaleFireTime
		}
		s := slot
		m.rules[i].LastFiredAt = &s
		return nil
	}
	return schedule.ErrNotFound
}

func (m *memStore) lastFired(id string) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			return r.LastFiredAt
		}
	}
	return nil
}

type recordingDispatcher struct {
	mu    sync.Mutex
	reqs  []FireRequest
	fail  map[string]error
	delay time.Duration
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req FireRequest) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[req.RuleID]; err != nil {
		return err
	}
	d.reqs = append(d.reqs, req)
	return nil
}

func (d *recordingDispatcher) requests() []FireRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]FireRequest(nil), d.reqs...)
}

var sweepStart = time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)

func dailyRule(id, at string) domain.RuleInput {
	start := sweepStart
	return domain.RuleInput{
		ID: id, CampaignID: "camp-" + id, ClientID: "client-1",
		Frequency: "DAILY", TimeOfDay: at, Timezone: "UTC", StartDate: &start,
	}
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestScheduleSweeper_FiresDueSlotOnce(t *testing.T) {
	store := &memStore{rules: []domain.RuleInput{dailyRule("r1", "09:00")}}
	disp := &recordingDispatcher{}
	sw := NewScheduleSweeper(store, disp, nil)

	now := time.Date(2026, 1, 10, 9, 0, 30, 0, time.UTC)
	report := sw.SweepOnce(context.Background(), now)
	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Dispatched)
	assert.Empty(t, report.Failed)

	reqs := disp.requests()
	require.Len(t, reqs, 1)
	slot := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	assert.True(t, slot.Equal(reqs[0].Slot))
	assert.Equal(t, "camp-r1", reqs[0].CampaignID)
	assert.Equal(t, IdempotencyKey("r1", slot), reqs[0].IdempotencyKey)
	require.NotNil(t, store.lastFired("r1"))
	assert.True(t, slot.Equal(*store.lastFired("r1")))

	// A second sweep in the same minute sees last_fired_at and does nothing.
	report = sw.SweepOnce(context.Background(), now.Add(20*time.Second))
	assert.Zero(t, report.Due)
	assert.Len(t, disp.requests(), 1)
}

func TestScheduleSweeper_NotDueYet(t *testing.T) {
	store := &memStore{rules: []domain.RuleInput{dailyRule("r1", "09:00")}}
	disp := &recordingDispatcher{}
	sw := NewScheduleSweeper(store, disp, nil)

	report := sw.SweepOnce(context.Background(), time.Date(2026, 1, 10, 8, 59, 0, 0, time.UTC))
	assert.Equal(t, 1, report.Evaluated)
	assert.Zero(t, report.Due)
	assert.Empty(t, disp.requests())
}

func TestScheduleSweeper_MisfireWindow(t *testing.T) {
	store := &memStore{rules: []domain.RuleInput{dailyRule("r1", "09:00")}}
	disp := &recordingDispatcher{}
	sw := NewScheduleSweeper(store, disp, nil)
	sw.SetMisfireWindow(10 * time.Minute)

	// 20 minutes late: the slot is outside the window and is dropped.
	report := sw.SweepOnce(context.Background(), time.Date(2026, 1, 10, 9, 20, 0, 0, time.UTC))
	assert.Zero(t, report.Due)

	// 5 minutes late still fires.
	report = sw.SweepOnce(context.Background(), time.Date(2026, 1, 11, 9, 5, 0, 0, time.UTC))
	assert.Equal(t, 1, report.Dispatched)
}

func TestScheduleSweeper_IsolatesFailures(t *testing.T) {
	bad := dailyRule("bad", "09:00")
	bad.Timezone = "Nowhere/City"
	store := &memStore{rules: []domain.RuleInput{
		bad,
		dailyRule("flaky", "09:00"),
		dailyRule("ok", "09:00"),
	}}
	disp := &recordingDispatcher{fail: map[string]error{"flaky": errors.New("downstream 503")}}
	sw := NewScheduleSweeper(store, disp, nil)

	report := sw.SweepOnce(context.Background(), time.Date(2026, 1, 10, 9, 1, 0, 0, time.UTC))
	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 1, report.Dispatched)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "bad", report.Failed[0].RuleID)
	assert.Equal(t, "validate", report.Failed[0].Stage)
	assert.Equal(t, "flaky", report.Failed[1].RuleID)
	assert.Equal(t, "dispatch", report.Failed[1].Stage)

	// The failed dispatch is not stamped, so the next sweep retries it.
	assert.Nil(t, store.lastFired("flaky"))
	assert.Equal(t, int64(2), sw.Stats()["failures"])
}

func TestScheduleSweeper_ListError(t *testing.T) {
	store := &memStore{listErr: errors.New("db down")}
	sw := NewScheduleSweeper(store, &recordingDispatcher{}, nil)
	report := sw.SweepOnce(context.Background(), time.Now())
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "list", report.Failed[0].Stage)
}

func TestScheduleSweeper_ConcurrentSweepersShareLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := &memStore{rules: []domain.RuleInput{dailyRule("r1", "09:00")}}
	disp := &recordingDispatcher{delay: 50 * time.Millisecond}
	locks := distlock.NewFactory(client, nil, time.Minute)
	now := time.Date(2026, 1, 10, 9, 0, 30, 0, time.UTC)

	var wg sync.WaitGroup
	reports := make([]SweepReport, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i] = NewScheduleSweeper(store, disp, locks).SweepOnce(context.Background(), now)
		}(i)
	}
	wg.Wait()

	dispatched := 0
	for _, r := range reports {
		dispatched += r.Dispatched
	}
	assert.Len(t, disp.requests(), 1)
	assert.Equal(t, 1, dispatched)
}

func TestScheduleSweeper_StartStop(t *testing.T) {
	store := &memStore{rules: []domain.RuleInput{dailyRule("r1", "09:00")}}
	sw := NewScheduleSweeper(store, &recordingDispatcher{}, nil)
	sw.SetInterval(10 * time.Millisecond)

	require.NoError(t, sw.Start())
	assert.True(t, sw.Running())
	assert.Error(t, sw.Start(), "double start should error")

	assert.Eventually(t, func() bool { return sw.Stats()["sweeps"] >= 2 }, time.Second, 5*time.Millisecond)
	sw.Stop()
	assert.False(t, sw.Running())
	sw.Stop()
}

func TestIdempotencyKey(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	slot := time.Date(2026, 1, 10, 9, 0, 0, 0, ny)
	assert.Equal(t, IdempotencyKey("r1", slot), IdempotencyKey("r1", slot.UTC()))
	assert.NotEqual(t, IdempotencyKey("r1", slot), IdempotencyKey("r2", slot))
	assert.NotEqual(t, IdempotencyKey("r1", slot), IdempotencyKey("r1", slot.Add(time.Minute)))
}

// =============================================================================
// DISPATCHER TESTS
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestRecordingDispatcher(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	slot := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	req := FireRequest{RuleID: "r1", CampaignID: "camp-1", Slot: slot, IdempotencyKey: "k1"}
	mock.ExpectExec(`INSERT INTO schedule_fires`).
		WithArgs("k1", "r1", "camp-1", slot).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO schedule_fires`).
		WithArgs("k1", "r1", "camp-1", slot).
		WillReturnResult(sqlmock.NewResult(0, 0))

	d := NewRecordingDispatcher(postgres.NewFireLog(db))
	require.NoError(t, d.Dispatch(context.Background(), req))
	require.NoError(t, d.Dispatch(context.Background(), req), "duplicate key is not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookDispatcher(t *testing.T) {
	var got FireRequest
	var key string
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := httpretry.NewRetryClient(srv.Client(), 1, httpretry.WithBackoff(time.Millisecond, time.Millisecond))
	d := NewWebhookDispatcher(client, srv.URL)
	req := FireRequest{RuleID: "r1", CampaignID: "camp-1", Slot: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), IdempotencyKey: "k1"}

	require.NoError(t, d.Dispatch(context.Background(), req))
	assert.Equal(t, "k1", key)
	assert.Equal(t, "camp-1", got.CampaignID)

	status = http.StatusConflict
	assert.NoError(t, d.Dispatch(context.Background(), req))

	status = http.StatusUnprocessableEntity
	assert.Error(t, d.Dispatch(context.Background(), req))
}

func TestChain_StopsAtFirstError(t *testing.T) {
	first := &recordingDispatcher{fail: map[string]error{"r1": errors.New("boom")}}
	second := &recordingDispatcher{}
	err := Chain{first, second}.Dispatch(context.Background(), FireRequest{RuleID: "r1"})
	assert.Error(t, err)
	assert.Empty(t, second.requests())
}
