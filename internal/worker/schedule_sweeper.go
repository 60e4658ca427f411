package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/pkg/distlock"
	"github.com/ignite/campaign-core/internal/pkg/logger"
	"github.com/ignite/campaign-core/internal/recurrence"
	"github.com/ignite/campaign-core/internal/service/schedule"
)

// =============================================================================
// SCHEDULE SWEEPER WORKER
// =============================================================================
// Every tick the sweeper loads active recurrence rules, works out which slot
// (if any) is due, and hands it to a Dispatcher exactly once:
//
// - A per-slot distributed lock keeps concurrent sweepers off the same slot
// - The idempotency key is derived from (rule, slot) so downstream dedupes
// - last_fired_at is stamped after a successful dispatch
// - One failing rule never aborts the sweep

const (
	// DefaultSweepInterval is how often active rules are evaluated.
	DefaultSweepInterval = 60 * time.Second

	// DefaultMisfireWindow bounds how far back a missed slot still fires.
	DefaultMisfireWindow = 15 * time.Minute

	// DefaultLockTTL is how long a slot lock is held before it expires.
	DefaultLockTTL = 2 * time.Minute
)

// RuleStore is the slice of schedule.Repository the sweeper needs.
type RuleStore interface {
	ListActive(ctx context.Context, now time.Time) ([]domain.RuleInput, error)
	StampFired(ctx context.Context, id string, slot time.Time) error
}

// FireRequest asks downstream to send one occurrence of a campaign.
type FireRequest struct {
	RuleID         string    `json:"rule_id"`
	CampaignID     string    `json:"campaign_id"`
	ClientID       string    `json:"client_id"`
	Slot           time.Time `json:"slot"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Dispatcher delivers fire requests. Implementations should treat a
// repeated IdempotencyKey as already handled.
type Dispatcher interface {
	Dispatch(ctx context.Context, req FireRequest) error
}

// RuleFailure records why one rule could not be processed in a sweep.
type RuleFailure struct {
	RuleID string `json:"rule_id"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// SweepReport summarizes one pass over the active rules.
type SweepReport struct {
	At         time.Time     `json:"at"`
	Evaluated  int           `json:"evaluated"`
	Due        int           `json:"due"`
	Dispatched int           `json:"dispatched"`
	Skipped    int           `json:"skipped"`
	Failed     []RuleFailure `json:"failed,omitempty"`
}

var fireNamespace = uuid.MustParse("0b6c7c52-8f1e-4d27-9a0e-5d3b2f6a1c94")

// IdempotencyKey names one fire of one rule.
func IdempotencyKey(ruleID string, slot time.Time) string {
	return uuid.NewSHA1(fireNamespace, []byte(ruleID+"|"+slot.UTC().Format(time.RFC3339Nano))).String()
}

// ScheduleSweeper periodically fires due recurrence rules.
type ScheduleSweeper struct {
	store      RuleStore
	dispatcher Dispatcher
	locks      distlock.Factory
	log        *logger.Logger
	workerID   string

	interval      time.Duration
	misfireWindow time.Duration
	now           func() time.Time

	// Stats
	sweeps     int64
	dispatched int64
	skipped    int64
	failures   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewScheduleSweeper creates a sweeper. locks may be nil for a single
// instance deployment, in which case slots are not locked.
func NewScheduleSweeper(store RuleStore, dispatcher Dispatcher, locks distlock.Factory) *ScheduleSweeper {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	id := fmt.Sprintf("sweeper-%s-%d", hostname, time.Now().UnixNano()%10000)
	return &ScheduleSweeper{
		store:         store,
		dispatcher:    dispatcher,
		locks:         locks,
		log:           logger.Default().With("component", "schedule_sweeper", "worker_id", id),
		workerID:      id,
		interval:      DefaultSweepInterval,
		misfireWindow: DefaultMisfireWindow,
		now:           time.Now,
	}
}

// SetInterval overrides the sweep interval. Non-positive values are ignored.
func (s *ScheduleSweeper) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// SetMisfireWindow overrides how far back a missed slot may still fire.
func (s *ScheduleSweeper) SetMisfireWindow(d time.Duration) {
	if d > 0 {
		s.misfireWindow = d
	}
}

// SetLogger replaces the sweeper's logger.
func (s *ScheduleSweeper) SetLogger(l *logger.Logger) {
	if l != nil {
		s.log = l.With("component", "schedule_sweeper", "worker_id", s.workerID)
	}
}

// Start begins the sweep loop. The first sweep runs immediately.
func (s *ScheduleSweeper) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.log.Info("starting", "interval", s.interval, "misfire_window", s.misfireWindow)

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *ScheduleSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("stopping")
	s.cancel()
	s.wg.Wait()
	s.log.Info("stopped",
		"sweeps", atomic.LoadInt64(&s.sweeps),
		"dispatched", atomic.LoadInt64(&s.dispatched),
		"failures", atomic.LoadInt64(&s.failures))
}

// Running reports whether the loop is active.
func (s *ScheduleSweeper) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *ScheduleSweeper) loop() {
	defer s.wg.Done()

	s.SweepOnce(s.ctx, s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(s.ctx, s.now())
		}
	}
}

// SweepOnce evaluates every active rule at now and dispatches due slots.
func (s *ScheduleSweeper) SweepOnce(ctx context.Context, now time.Time) SweepReport {
	report := SweepReport{At: now}
	atomic.AddInt64(&s.sweeps, 1)

	rules, err := s.store.ListActive(ctx, now)
	if err != nil {
		atomic.AddInt64(&s.failures, 1)
		s.log.Error("list active rules failed", "error", err)
		report.Failed = append(report.Failed, RuleFailure{Stage: "list", Error: err.Error()})
		return report
	}

	for _, in := range rules {
		if ctx.Err() != nil {
			break
		}
		report.Evaluated++
		s.sweepRule(ctx, in, now, &report)
	}

	if report.Due > 0 || len(report.Failed) > 0 {
		s.log.Info("sweep complete",
			"evaluated", report.Evaluated, "due", report.Due,
			"dispatched", report.Dispatched, "skipped", report.Skipped,
			"failed", len(report.Failed))
	}
	return report
}

func (s *ScheduleSweeper) sweepRule(ctx context.Context, in domain.RuleInput, now time.Time, report *SweepReport) {
	fail := func(stage string, err error) {
		atomic.AddInt64(&s.failures, 1)
		report.Failed = append(report.Failed, RuleFailure{RuleID: in.ID, Stage: stage, Error: err.Error()})
		s.log.Warn("rule failed", "rule_id", in.ID, "campaign_id", in.CampaignID, "stage", stage, "error", err)
	}

	rule, err := recurrence.Validate(in)
	if err != nil {
		fail("validate", err)
		return
	}
	slot, due, err := recurrence.DueAt(rule, now, s.misfireWindow)
	if err != nil {
		fail("evaluate", err)
		return
	}
	if !due {
		return
	}
	report.Due++

	if s.locks != nil {
		lock := s.locks(distlock.SlotKey(rule.ID, slot))
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			fail("lock", err)
			return
		}
		if !acquired {
			// Another sweeper owns this slot.
			report.Skipped++
			atomic.AddInt64(&s.skipped, 1)
			return
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
				s.log.Warn("lock release failed", "rule_id", rule.ID, "error", err)
			}
		}()
	}

	req := FireRequest{
		RuleID:         rule.ID,
		CampaignID:     rule.CampaignID,
		ClientID:       rule.ClientID,
		Slot:           slot.UTC(),
		IdempotencyKey: IdempotencyKey(rule.ID, slot),
	}
	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		fail("dispatch", err)
		return
	}

	if err := s.store.StampFired(ctx, rule.ID, slot); err != nil {
		if errors.Is(err, schedule.ErrStaleFireTime) {
			// A peer stamped first; the dispatch was deduped by key.
			report.Skipped++
			atomic.AddInt64(&s.skipped, 1)
			return
		}
		fail("stamp", err)
		return
	}

	report.Dispatched++
	atomic.AddInt64(&s.dispatched, 1)
	s.log.Info("fired", "rule_id", rule.ID, "campaign_id", rule.CampaignID, "slot", req.Slot.Format(time.RFC3339))
}

// Stats returns sweeper counters.
func (s *ScheduleSweeper) Stats() map[string]int64 {
	return map[string]int64{
		"sweeps":     atomic.LoadInt64(&s.sweeps),
		"dispatched": atomic.LoadInt64(&s.dispatched),
		"skipped":    atomic.LoadInt64(&s.skipped),
		"failures":   atomic.LoadInt64(&s.failures),
	}
}
