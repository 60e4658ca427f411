package schedule

import (
	"context"
	"time"

	"github.com/ignite/campaign-core/internal/domain"
)

// Repository defines the data access contract for recurrence rules.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns one rule. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (domain.RuleInput, error)

	// GetByCampaign returns the rule attached to a campaign.
	GetByCampaign(ctx context.Context, campaignID string) (domain.RuleInput, error)

	// Save inserts or replaces the rule for its campaign and returns its ID.
	// LastFiredAt is never overwritten by Save.
	Save(ctx context.Context, in domain.RuleInput) (string, error)

	// ListActive returns repeating rules whose end date is unset or not
	// before now.
	ListActive(ctx context.Context, now time.Time) ([]domain.RuleInput, error)

	// StampFired advances last_fired_at to slot. It returns ErrStaleFireTime
	// when the stored value is already at or after slot.
	StampFired(ctx context.Context, id string, slot time.Time) error
}
