package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/recurrence"
)

const (
	DefaultPreviewCount = 10
	MaxPreviewCount     = 100
)

// Service implements schedule business logic on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a schedule service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Preview lists the next fire times of a rule.
type Preview struct {
	Rule  domain.RuleInput `json:"rule"`
	From  time.Time        `json:"from"`
	Fires []time.Time      `json:"fires"`
}

// Validate checks editor input and returns it normalized: fields that don't
// apply to the chosen frequency are dropped. Errors are
// *recurrence.ValidationError.
func (s *Service) Validate(in domain.RuleInput) (domain.RuleInput, error) {
	rule, err := recurrence.Validate(in)
	if err != nil {
		return domain.RuleInput{}, err
	}
	return rule.Input(), nil
}

// Preview validates in and computes up to count fires after from. A zero
// from means now; count is clamped to [1, MaxPreviewCount].
func (s *Service) Preview(in domain.RuleInput, from time.Time, count int) (Preview, error) {
	rule, err := recurrence.Validate(in)
	if err != nil {
		return Preview{}, err
	}
	if from.IsZero() {
		from = s.now()
	}
	switch {
	case count <= 0:
		count = DefaultPreviewCount
	case count > MaxPreviewCount:
		count = MaxPreviewCount
	}
	fires, err := recurrence.Upcoming(rule, from, count)
	if err != nil {
		return Preview{}, fmt.Errorf("preview: %w", err)
	}
	if fires == nil {
		fires = []time.Time{}
	}
	return Preview{Rule: rule.Input(), From: from, Fires: fires}, nil
}

// Save validates and stores a campaign's rule. New rules get an ID.
func (s *Service) Save(ctx context.Context, in domain.RuleInput) (domain.RuleInput, error) {
	if in.CampaignID == "" || in.ClientID == "" {
		return domain.RuleInput{}, ErrMissingOwner
	}
	norm, err := s.Validate(in)
	if err != nil {
		return domain.RuleInput{}, err
	}
	if norm.ID == "" {
		norm.ID = uuid.New().String()
	}
	id, err := s.repo.Save(ctx, norm)
	if err != nil {
		return domain.RuleInput{}, err
	}
	norm.ID = id
	return norm, nil
}

// Get returns a stored rule.
func (s *Service) Get(ctx context.Context, id string) (domain.RuleInput, error) {
	return s.repo.Get(ctx, id)
}

// ForCampaign returns the rule attached to a campaign.
func (s *Service) ForCampaign(ctx context.Context, campaignID string) (domain.RuleInput, error) {
	return s.repo.GetByCampaign(ctx, campaignID)
}

// NextFire reports a stored rule's next fire after now, honoring its
// last_fired_at.
func (s *Service) NextFire(ctx context.Context, id string) (time.Time, bool, error) {
	in, err := s.repo.Get(ctx, id)
	if err != nil {
		return time.Time{}, false, err
	}
	rule, err := recurrence.Validate(in)
	if err != nil {
		return time.Time{}, false, err
	}
	return recurrence.NextFireAfter(rule, s.now())
}
