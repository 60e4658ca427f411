package engagement

import (
	"sort"

	"github.com/ignite/campaign-core/internal/domain"
)

// terminalPrecedence orders terminal outcomes when reporting a single
// display status: a bounce outranks a complaint, which outranks an
// unsubscribe.
var terminalPrecedence = []domain.EventType{
	domain.EventBounced,
	domain.EventSpamReported,
	domain.EventUnsubscribed,
}

// ResolveStatus folds one contact's events within one campaign into its
// current engagement status. The result does not depend on input order.
// Events of unknown type are ignored. An input with no event of a known
// type returns ErrEmptyEventSet.
func ResolveStatus(events []domain.EmailEvent) (domain.ContactEngagementStatus, error) {
	if len(events) == 0 {
		return domain.ContactEngagementStatus{}, ErrEmptyEventSet
	}

	st := domain.ContactEngagementStatus{ContactEmail: domain.NormalizeEmail(events[0].ContactEmail)}
	var tierEvent domain.EmailEvent
	for _, e := range events {
		switch {
		case e.EventType.IsTerminal():
			if st.TerminalEvents == nil {
				st.TerminalEvents = make(map[domain.EventType]domain.EmailEvent, len(terminalPrecedence))
			}
			if cur, ok := st.TerminalEvents[e.EventType]; !ok || supersedes(e, cur) {
				st.TerminalEvents[e.EventType] = e
			}
		case e.EventType.Tier() != domain.TierNone:
			tier := e.EventType.Tier()
			if tier > st.Tier || (tier == st.Tier && supersedes(e, tierEvent)) {
				st.Tier = tier
				tierEvent = e
			}
		}
	}

	if st.Tier == domain.TierNone && len(st.TerminalEvents) == 0 {
		return domain.ContactEngagementStatus{}, ErrEmptyEventSet
	}
	if st.Tier != domain.TierNone {
		st.TierEvent = &tierEvent
		st.Status = tierEvent.EventType
		st.ResolvedAt = tierEvent.Timestamp
	}
	_, st.Terminal.Bounced = st.TerminalEvents[domain.EventBounced]
	_, st.Terminal.Complained = st.TerminalEvents[domain.EventSpamReported]
	_, st.Terminal.Unsubscribed = st.TerminalEvents[domain.EventUnsubscribed]
	for _, t := range terminalPrecedence {
		if e, ok := st.TerminalEvents[t]; ok {
			st.Status = t
			st.ResolvedAt = e.Timestamp
			break
		}
	}
	return st, nil
}

// supersedes reports whether a replaces b as the representative record of
// the same tier: the later timestamp wins, and identical timestamps fall
// back to a total order over the remaining fields so the fold stays
// commutative.
func supersedes(a, b domain.EmailEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.ErrorMessage != b.ErrorMessage {
		return a.ErrorMessage > b.ErrorMessage
	}
	if a.ID != b.ID {
		return a.ID > b.ID
	}
	if a.CampaignID != b.CampaignID {
		return a.CampaignID > b.CampaignID
	}
	if a.ClientID != b.ClientID {
		return a.ClientID > b.ClientID
	}
	return a.ContactEmail > b.ContactEmail
}

// GroupByContact splits a campaign's events by normalized contact address.
func GroupByContact(events []domain.EmailEvent) map[string][]domain.EmailEvent {
	out := make(map[string][]domain.EmailEvent)
	for _, e := range events {
		key := domain.NormalizeEmail(e.ContactEmail)
		if key == "" {
			continue
		}
		out[key] = append(out[key], e)
	}
	return out
}

// ResolveAll resolves every contact in a campaign's event log, ordered by
// contact address.
func ResolveAll(events []domain.EmailEvent) []domain.ContactEngagementStatus {
	groups := GroupByContact(events)
	out := make([]domain.ContactEngagementStatus, 0, len(groups))
	for _, evs := range groups {
		st, err := ResolveStatus(evs)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContactEmail < out[j].ContactEmail })
	return out
}

// ResolveContact resolves a single contact from a campaign's event log.
// It returns ErrEmptyEventSet when the contact has no events.
func ResolveContact(events []domain.EmailEvent, email string) (domain.ContactEngagementStatus, error) {
	key := domain.NormalizeEmail(email)
	var mine []domain.EmailEvent
	for _, e := range events {
		if domain.NormalizeEmail(e.ContactEmail) == key {
			mine = append(mine, e)
		}
	}
	return ResolveStatus(mine)
}
