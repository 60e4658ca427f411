package export

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/service/analytics"
)

// Report is the exported view of one client.
type Report struct {
	ClientID    string                               `json:"client_id"`
	GeneratedAt time.Time                            `json:"generated_at"`
	Timezone    string                               `json:"timezone"`
	Summary     domain.ClientAnalyticsSummary        `json:"summary"`
	Campaigns   []domain.CampaignAnalyticsSummary    `json:"campaigns"`
	Daily       map[string][]domain.DailyPerformance `json:"daily"`

	// Contacts holds each campaign's resolved contact statuses.
	Contacts map[string][]domain.ContactEngagementStatus `json:"contacts"`
}

// Builder assembles reports from the analytics service.
type Builder struct {
	analytics *analytics.Service
	now       func() time.Time
}

func NewBuilder(svc *analytics.Service) *Builder {
	return &Builder{analytics: svc, now: time.Now}
}

// Build summarizes every campaign of clientID, with daily buckets in loc.
// A nil loc means UTC.
func (b *Builder) Build(ctx context.Context, clientID string, loc *time.Location) (Report, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr, err := b.analytics.ClientSummary(ctx, clientID)
	if err != nil {
		return Report{}, err
	}

	daily := make(map[string][]domain.DailyPerformance, len(cr.Campaigns))
	contacts := make(map[string][]domain.ContactEngagementStatus, len(cr.Campaigns))
	for _, c := range cr.Campaigns {
		days, err := b.analytics.Daily(ctx, c.CampaignID, loc)
		if err != nil {
			return Report{}, fmt.Errorf("campaign %s: %w", c.CampaignID, err)
		}
		daily[c.CampaignID] = days

		statuses, err := b.analytics.Contacts(ctx, c.CampaignID)
		if err != nil {
			return Report{}, fmt.Errorf("campaign %s: %w", c.CampaignID, err)
		}
		contacts[c.CampaignID] = statuses
	}

	return Report{
		ClientID:    clientID,
		GeneratedAt: b.now().UTC(),
		Timezone:    loc.String(),
		Summary:     cr.Summary,
		Campaigns:   cr.Campaigns,
		Daily:       daily,
		Contacts:    contacts,
	}, nil
}
