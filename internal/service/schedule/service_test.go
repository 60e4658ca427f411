package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/recurrence"
	"github.com/ignite/campaign-core/internal/service/schedule"
)

// memRepo is an in-memory Repository for testing.
type memRepo struct {
	mu    sync.Mutex
	rules map[string]domain.RuleInput
}

func newMemRepo() *memRepo { return &memRepo{rules: make(map[string]domain.RuleInput)} }

func (m *memRepo) Get(_ context.Context, id string) (domain.RuleInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.rules[id]
	if !ok {
		return domain.RuleInput{}, schedule.ErrNotFound
	}
	return in, nil
}

func (m *memRepo) GetByCampaign(_ context.Context, campaignID string) (domain.RuleInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.rules {
		if in.CampaignID == campaignID {
			return in, nil
		}
	}
	return domain.RuleInput{}, schedule.ErrNotFound
}

func (m *memRepo) Save(_ context.Context, in domain.RuleInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.rules[in.ID]; ok {
		in.LastFiredAt = prev.LastFiredAt
	}
	m.rules[in.ID] = in
	return in.ID, nil
}

func (m *memRepo) ListActive(_ context.Context, now time.Time) ([]domain.RuleInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RuleInput
	for _, in := range m.rules {
		if in.Frequency == string(domain.FrequencyNone) {
			continue
		}
		if in.EndDate != nil && in.EndDate.Before(now) {
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (m *memRepo) StampFired(_ context.Context, id string, slot time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.rules[id]
	if !ok {
		return schedule.ErrNotFound
	}
	if in.LastFiredAt != nil && !slot.After(*in.LastFiredAt) {
		return schedule.ErrStaleFireTime
	}
	in.LastFiredAt = &slot
	m.rules[id] = in
	return nil
}

func weeklyInput() domain.RuleInput {
	start := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	dom := 12
	return domain.RuleInput{
		CampaignID: "camp-1",
		ClientID:   "client-1",
		Frequency:  "weekly",
		TimeOfDay:  "10:30",
		Timezone:   "UTC",
		DaysOfWeek: []int{3, 1},
		DayOfMonth: &dom, // irrelevant for weekly
		StartDate:  &start,
	}
}

func TestService_ValidateNormalizes(t *testing.T) {
	svc := schedule.NewService(newMemRepo())
	out, err := svc.Validate(weeklyInput())
	require.NoError(t, err)
	assert.Equal(t, "WEEKLY", out.Frequency)
	assert.Equal(t, []int{1, 3}, out.DaysOfWeek)
	assert.Nil(t, out.DayOfMonth)
}

func TestService_ValidateRejects(t *testing.T) {
	svc := schedule.NewService(newMemRepo())
	in := weeklyInput()
	in.DaysOfWeek = nil
	in.Timezone = "Mars/Olympus"

	_, err := svc.Validate(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, recurrence.ErrInvalidRule)
	assert.ErrorIs(t, err, recurrence.ErrEmptySelection)
	assert.ErrorIs(t, err, recurrence.ErrUnknownTimezone)
}

func TestService_Preview(t *testing.T) {
	svc := schedule.NewService(newMemRepo())
	from := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC) // Monday after the slot

	p, err := svc.Preview(weeklyInput(), from, 3)
	require.NoError(t, err)
	require.Len(t, p.Fires, 3)
	assert.Equal(t, time.Date(2026, 1, 7, 10, 30, 0, 0, time.UTC), p.Fires[0])
	assert.Equal(t, time.Date(2026, 1, 12, 10, 30, 0, 0, time.UTC), p.Fires[1])
	assert.Equal(t, time.Date(2026, 1, 14, 10, 30, 0, 0, time.UTC), p.Fires[2])

	p, err = svc.Preview(weeklyInput(), from, 1000)
	require.NoError(t, err)
	assert.Len(t, p.Fires, schedule.MaxPreviewCount)

	p, err = svc.Preview(domain.RuleInput{Frequency: "NONE"}, from, 5)
	require.NoError(t, err)
	assert.Empty(t, p.Fires)
	assert.NotNil(t, p.Fires)
}

func TestService_SaveAndNextFire(t *testing.T) {
	repo := newMemRepo()
	svc := schedule.NewService(repo)
	ctx := context.Background()

	saved, err := svc.Save(ctx, weeklyInput())
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := svc.ForCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)

	next, ok, err := svc.NextFire(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, next.After(time.Now()))

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestService_SaveRequiresOwner(t *testing.T) {
	svc := schedule.NewService(newMemRepo())
	in := weeklyInput()
	in.ClientID = ""
	_, err := svc.Save(context.Background(), in)
	assert.ErrorIs(t, err, schedule.ErrMissingOwner)
}
