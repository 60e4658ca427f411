package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/engagement"
)

// Service answers reporting queries for campaigns and clients.
type Service struct {
	repo Repository
}

// NewService creates an analytics service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CampaignSummary aggregates one campaign. A campaign with no events yields
// a zero summary rather than an error.
func (s *Service) CampaignSummary(ctx context.Context, campaignID string) (domain.CampaignAnalyticsSummary, error) {
	events, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return domain.CampaignAnalyticsSummary{}, fmt.Errorf("campaign summary: %w", err)
	}
	return engagement.Summarize(campaignID, events), nil
}

// Timeline returns a campaign's events filtered by type.
func (s *Service) Timeline(ctx context.Context, campaignID string, filter domain.TimelineFilter) (domain.Timeline, error) {
	events, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return domain.Timeline{}, fmt.Errorf("timeline: %w", err)
	}
	return engagement.ProjectTimeline(events, filter), nil
}

// Contacts resolves every contact of a campaign.
func (s *Service) Contacts(ctx context.Context, campaignID string) ([]domain.ContactEngagementStatus, error) {
	events, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}
	return engagement.ResolveAll(events), nil
}

// Contact resolves one contact. It returns ErrNotFound when the contact has
// no events in the campaign.
func (s *Service) Contact(ctx context.Context, campaignID, email string) (domain.ContactEngagementStatus, error) {
	events, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return domain.ContactEngagementStatus{}, fmt.Errorf("contact: %w", err)
	}
	st, err := engagement.ResolveContact(events, email)
	if errors.Is(err, engagement.ErrEmptyEventSet) {
		return domain.ContactEngagementStatus{}, ErrNotFound
	}
	return st, err
}

// Daily buckets a campaign's event totals by calendar day in loc.
func (s *Service) Daily(ctx context.Context, campaignID string, loc *time.Location) ([]domain.DailyPerformance, error) {
	events, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("daily performance: %w", err)
	}
	return engagement.DailyPerformance(events, loc), nil
}

// ClientReport is a client summary with its per-campaign breakdown.
type ClientReport struct {
	Summary   domain.ClientAnalyticsSummary     `json:"summary"`
	Campaigns []domain.CampaignAnalyticsSummary `json:"campaigns"`
}

// ClientSummary aggregates every campaign of a client, summing totals
// before computing rates.
func (s *Service) ClientSummary(ctx context.Context, clientID string) (ClientReport, error) {
	events, err := s.repo.ListByClient(ctx, clientID)
	if err != nil {
		return ClientReport{}, fmt.Errorf("client summary: %w", err)
	}

	byCampaign := make(map[string][]domain.EmailEvent)
	for _, e := range events {
		byCampaign[e.CampaignID] = append(byCampaign[e.CampaignID], e)
	}
	ids := make([]string, 0, len(byCampaign))
	for id := range byCampaign {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	campaigns := make([]domain.CampaignAnalyticsSummary, 0, len(ids))
	for _, id := range ids {
		campaigns = append(campaigns, engagement.Summarize(id, byCampaign[id]))
	}
	return ClientReport{
		Summary:   engagement.SummarizeClient(clientID, campaigns),
		Campaigns: campaigns,
	}, nil
}

// PrepareEvents checks and normalizes events before they are stored: the
// type and campaign must be set, the contact address is normalized and
// events without an ID get a deterministic one so redelivered webhooks
// dedupe.
func PrepareEvents(events []domain.EmailEvent) ([]domain.EmailEvent, error) {
	out := make([]domain.EmailEvent, 0, len(events))
	for i, e := range events {
		if !e.EventType.Valid() {
			return nil, fmt.Errorf("%w: event %d has type %q", ErrInvalidEvent, i, e.EventType)
		}
		if e.CampaignID == "" {
			return nil, fmt.Errorf("%w: event %d has no campaign_id", ErrInvalidEvent, i)
		}
		e.ContactEmail = domain.NormalizeEmail(e.ContactEmail)
		if e.ContactEmail == "" || !strings.Contains(e.ContactEmail, "@") {
			return nil, fmt.Errorf("%w: event %d has no contact_email", ErrInvalidEvent, i)
		}
		if e.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: event %d has no timestamp", ErrInvalidEvent, i)
		}
		e.Timestamp = e.Timestamp.UTC()
		if e.ID == "" {
			e.ID = EventID(e)
		}
		out = append(out, e)
	}
	return out, nil
}

// EventID derives a stable ID from an event's identifying fields.
func EventID(e domain.EmailEvent) string {
	key := strings.Join([]string{
		e.CampaignID,
		domain.NormalizeEmail(e.ContactEmail),
		string(e.EventType),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	}, "|")
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

var eventNamespace = uuid.MustParse("6f1b2a8e-3c4d-5e6f-8a9b-0c1d2e3f4a5b")
