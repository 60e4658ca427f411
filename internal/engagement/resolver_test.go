package engagement

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-core/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func ev(id string, typ domain.EventType, offset time.Duration) domain.EmailEvent {
	return domain.EmailEvent{
		ID:           id,
		ClientID:     "client-1",
		CampaignID:   "camp-1",
		ContactEmail: "jane@example.com",
		EventType:    typ,
		Timestamp:    t0.Add(offset),
	}
}

func TestResolveStatus_Ladder(t *testing.T) {
	st, err := ResolveStatus([]domain.EmailEvent{
		ev("1", domain.EventSent, 0),
		ev("2", domain.EventDelivered, time.Minute),
		ev("3", domain.EventOpened, time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TierOpened, st.Tier)
	assert.Equal(t, domain.EventOpened, st.Status)
	assert.Equal(t, t0.Add(time.Hour), st.ResolvedAt)
	assert.False(t, st.Terminal.Any())
	require.NotNil(t, st.TierEvent)
	assert.Equal(t, "3", st.TierEvent.ID)

	st, err = ResolveStatus([]domain.EmailEvent{
		ev("1", domain.EventSent, 0),
		ev("2", domain.EventDelivered, time.Minute),
		ev("3", domain.EventOpened, time.Hour),
		ev("4", domain.EventClicked, 2*time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TierClicked, st.Tier)
	assert.Equal(t, domain.EventClicked, st.Status)
}

func TestResolveStatus_HigherTierWinsRegardlessOfTime(t *testing.T) {
	// A late delivery receipt never demotes an earlier click.
	st, err := ResolveStatus([]domain.EmailEvent{
		ev("1", domain.EventClicked, time.Minute),
		ev("2", domain.EventDelivered, time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EventClicked, st.Status)
}

func TestResolveStatus_LatestOfTierRepresents(t *testing.T) {
	st, err := ResolveStatus([]domain.EmailEvent{
		ev("a", domain.EventOpened, time.Hour),
		ev("b", domain.EventOpened, 3*time.Hour),
		ev("c", domain.EventOpened, 2*time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, st.TierEvent)
	assert.Equal(t, "b", st.TierEvent.ID)
}

func TestResolveStatus_Terminal(t *testing.T) {
	events := []domain.EmailEvent{
		ev("1", domain.EventSent, 0),
		ev("2", domain.EventBounced, time.Minute),
		ev("3", domain.EventDelivered, 2*time.Minute),
		ev("4", domain.EventOpened, time.Hour),
	}
	for i := 0; i < 10; i++ {
		shuffled := shuffle(events, int64(i))
		st, err := ResolveStatus(shuffled)
		require.NoError(t, err)
		assert.True(t, st.Terminal.Bounced)
		assert.Equal(t, domain.TierOpened, st.Tier)
		assert.Equal(t, domain.EventBounced, st.Status)
		assert.Equal(t, t0.Add(time.Minute), st.ResolvedAt)
	}
}

func TestResolveStatus_TerminalPrecedence(t *testing.T) {
	st, err := ResolveStatus([]domain.EmailEvent{
		ev("1", domain.EventUnsubscribed, time.Hour),
		ev("2", domain.EventSpamReported, 2*time.Hour),
		ev("3", domain.EventClicked, 3*time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, st.Terminal.Complained)
	assert.True(t, st.Terminal.Unsubscribed)
	assert.False(t, st.Terminal.Bounced)
	assert.Equal(t, domain.EventSpamReported, st.Status)
	assert.Equal(t, domain.TierClicked, st.Tier)
}

func TestResolveStatus_OnlyTerminal(t *testing.T) {
	st, err := ResolveStatus([]domain.EmailEvent{ev("1", domain.EventBounced, 0)})
	require.NoError(t, err)
	assert.Equal(t, domain.TierNone, st.Tier)
	assert.Nil(t, st.TierEvent)
	assert.Equal(t, domain.EventBounced, st.Status)
}

func TestResolveStatus_Empty(t *testing.T) {
	_, err := ResolveStatus(nil)
	assert.ErrorIs(t, err, ErrEmptyEventSet)
}

func TestResolveStatus_IgnoresUnknownTypes(t *testing.T) {
	st, err := ResolveStatus([]domain.EmailEvent{
		ev("1", domain.EventType("FORWARDED"), time.Hour),
		ev("2", domain.EventDelivered, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EventDelivered, st.Status)
}

func TestResolveStatus_OnlyUnknownTypes(t *testing.T) {
	_, err := ResolveStatus([]domain.EmailEvent{
		ev("1", domain.EventType("FORWARDED"), 0),
		ev("2", domain.EventType("PRINTED"), time.Minute),
	})
	assert.ErrorIs(t, err, ErrEmptyEventSet)

	all := ResolveAll([]domain.EmailEvent{
		ev("1", domain.EventType("FORWARDED"), 0),
	})
	assert.Empty(t, all, "a contact without known events has no status")
}

func TestResolveStatus_PermutationInvariant(t *testing.T) {
	types := domain.AllEventTypes
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(12)
		events := make([]domain.EmailEvent, n)
		for i := range events {
			// Coarse offsets so timestamp ties are common.
			events[i] = ev(string(rune('a'+i)), types[rng.Intn(len(types))], time.Duration(rng.Intn(4))*time.Minute)
		}
		want, err := ResolveStatus(events)
		require.NoError(t, err)
		for p := 0; p < 5; p++ {
			got, err := ResolveStatus(shuffle(events, rng.Int63()))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestResolveAll(t *testing.T) {
	events := []domain.EmailEvent{
		{ContactEmail: "B@example.com", EventType: domain.EventSent, Timestamp: t0},
		{ContactEmail: "a@example.com", EventType: domain.EventClicked, Timestamp: t0},
		{ContactEmail: "b@example.com ", EventType: domain.EventOpened, Timestamp: t0.Add(time.Hour)},
		{ContactEmail: "", EventType: domain.EventOpened, Timestamp: t0},
	}
	all := ResolveAll(events)
	require.Len(t, all, 2)
	assert.Equal(t, "a@example.com", all[0].ContactEmail)
	assert.Equal(t, "b@example.com", all[1].ContactEmail)
	assert.Equal(t, domain.EventOpened, all[1].Status)

	st, err := ResolveContact(events, "B@Example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOpened, st.Status)

	_, err = ResolveContact(events, "nobody@example.com")
	assert.ErrorIs(t, err, ErrEmptyEventSet)
}

func shuffle(in []domain.EmailEvent, seed int64) []domain.EmailEvent {
	out := append([]domain.EmailEvent(nil), in...)
	rand.New(rand.NewSource(seed)).Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
