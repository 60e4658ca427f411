package analytics

import (
	"context"

	"github.com/ignite/campaign-core/internal/domain"
)

// Repository defines read access to the email event log.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ListByCampaign returns every event recorded for a campaign.
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.EmailEvent, error)

	// ListByClient returns every event across a client's campaigns.
	ListByClient(ctx context.Context, clientID string) ([]domain.EmailEvent, error)
}

// Sink accepts newly observed events. Append reports how many were new;
// duplicates by event ID are dropped.
type Sink interface {
	Append(ctx context.Context, events []domain.EmailEvent) (int, error)
}
