package engagement

import (
	"github.com/ignite/campaign-core/internal/domain"
)

// Aggregate computes engagement rates from event totals. Delivery and bounce
// rates are relative to sent; open, click, complaint and unsubscribe rates
// are relative to delivered. A zero denominator yields 0.
func Aggregate(c domain.EventCounts) domain.Rates {
	return domain.Rates{
		DeliveryRate:    percent(c.Delivered, c.Sent),
		OpenRate:        percent(c.Opened, c.Delivered),
		ClickRate:       percent(c.Clicked, c.Delivered),
		BounceRate:      percent(c.Bounced, c.Sent),
		ComplaintRate:   percent(c.SpamReported, c.Delivered),
		UnsubscribeRate: percent(c.Unsubscribed, c.Delivered),
	}
}

func percent(num, den int) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	r := float64(num) / float64(den) * 100
	if r > 100 {
		return 100
	}
	return r
}

// CountEvents totals raw events by type, repeats included.
func CountEvents(events []domain.EmailEvent) domain.EventCounts {
	var c domain.EventCounts
	for _, e := range events {
		c.Record(e.EventType)
	}
	return c
}

// CountResolved totals contacts by resolved status. A contact counts toward
// every ladder tier at or below the one it reached, and every contact with
// any event counts as sent. Terminal flags count once per contact.
func CountResolved(statuses []domain.ContactEngagementStatus) domain.EventCounts {
	var c domain.EventCounts
	for _, st := range statuses {
		c.Sent++
		if st.Tier >= domain.TierDelivered {
			c.Delivered++
		}
		if st.Tier >= domain.TierOpened {
			c.Opened++
		}
		if st.Tier >= domain.TierClicked {
			c.Clicked++
		}
		if st.Terminal.Bounced {
			c.Bounced++
		}
		if st.Terminal.Complained {
			c.SpamReported++
		}
		if st.Terminal.Unsubscribed {
			c.Unsubscribed++
		}
	}
	return c
}

// Summarize builds the analytics summary of one campaign's event log. Rates
// are computed over unique contacts so repeated opens or clicks can't push
// them past 100%.
func Summarize(campaignID string, events []domain.EmailEvent) domain.CampaignAnalyticsSummary {
	statuses := ResolveAll(events)
	unique := CountResolved(statuses)
	return domain.CampaignAnalyticsSummary{
		CampaignID: campaignID,
		Totals:     CountEvents(events),
		Unique:     unique,
		Contacts:   len(statuses),
		Rates:      Aggregate(unique),
	}
}

// SummarizeClient sums campaign totals and divides once, so large campaigns
// weigh in proportion to their audience.
func SummarizeClient(clientID string, campaigns []domain.CampaignAnalyticsSummary) domain.ClientAnalyticsSummary {
	out := domain.ClientAnalyticsSummary{ClientID: clientID, Campaigns: len(campaigns)}
	for _, s := range campaigns {
		out.Totals = out.Totals.Plus(s.Totals)
		out.Unique = out.Unique.Plus(s.Unique)
		out.Contacts += s.Contacts
	}
	out.Rates = Aggregate(out.Unique)
	return out
}
