package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventType enumerates the email lifecycle events a delivery provider reports.
type EventType string

const (
	EventSent         EventType = "SENT"
	EventDelivered    EventType = "DELIVERED"
	EventOpened       EventType = "OPENED"
	EventClicked      EventType = "CLICKED"
	EventBounced      EventType = "BOUNCED"
	EventSpamReported EventType = "SPAM_REPORTED"
	EventUnsubscribed EventType = "UNSUBSCRIBED"
)

// AllEventTypes lists every event type in ladder order, terminals last.
var AllEventTypes = []EventType{
	EventSent, EventDelivered, EventOpened, EventClicked,
	EventBounced, EventSpamReported, EventUnsubscribed,
}

// ParseEventType normalizes an event type name.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventSent, EventDelivered, EventOpened, EventClicked,
		EventBounced, EventSpamReported, EventUnsubscribed:
		return true
	}
	return false
}

// IsTerminal reports whether t is a non-progressive outcome tracked as a flag.
func (t EventType) IsTerminal() bool {
	return t == EventBounced || t == EventSpamReported || t == EventUnsubscribed
}

// Tier returns the ladder rank of a positive-progress event, TierNone for
// terminal or unknown types.
func (t EventType) Tier() Tier {
	switch t {
	case EventSent:
		return TierSent
	case EventDelivered:
		return TierDelivered
	case EventOpened:
		return TierOpened
	case EventClicked:
		return TierClicked
	}
	return TierNone
}

// Tier is the rank of a positive-progress event: sent < delivered < opened < clicked.
type Tier int

const (
	TierNone Tier = iota
	TierSent
	TierDelivered
	TierOpened
	TierClicked
)

// EventType returns the event type that represents the tier.
func (t Tier) EventType() EventType {
	switch t {
	case TierSent:
		return EventSent
	case TierDelivered:
		return EventDelivered
	case TierOpened:
		return EventOpened
	case TierClicked:
		return EventClicked
	}
	return ""
}

func (t Tier) String() string {
	if t == TierNone {
		return "NONE"
	}
	return string(t.EventType())
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	s := strings.ToUpper(string(b))
	if s == "NONE" || s == "" {
		*t = TierNone
		return nil
	}
	et, ok := ParseEventType(s)
	if !ok || et.Tier() == TierNone {
		return fmt.Errorf("unknown tier %q", b)
	}
	*t = et.Tier()
	return nil
}

// EmailEvent is a single observed lifecycle transition for one contact in one
// campaign. Events are immutable and may arrive out of order or duplicated.
type EmailEvent struct {
	ID           string    `json:"id,omitempty" db:"id"`
	ClientID     string    `json:"client_id,omitempty" db:"client_id"`
	CampaignID   string    `json:"campaign_id" db:"campaign_id"`
	ContactEmail string    `json:"contact_email" db:"contact_email"`
	EventType    EventType `json:"event_type" db:"event_type"`
	Timestamp    time.Time `json:"timestamp" db:"occurred_at"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
}

// NormalizeEmail returns the comparison key for a contact address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TerminalFlags records non-progressive outcomes independently of tier.
type TerminalFlags struct {
	Bounced      bool `json:"bounced"`
	Complained   bool `json:"complained"`
	Unsubscribed bool `json:"unsubscribed"`
}

// Any reports whether any terminal outcome was observed.
func (f TerminalFlags) Any() bool { return f.Bounced || f.Complained || f.Unsubscribed }

// ContactEngagementStatus is the resolved state of one contact in one
// campaign: the highest ladder tier reached plus independent terminal flags.
type ContactEngagementStatus struct {
	ContactEmail string        `json:"contact_email"`
	Tier         Tier          `json:"tier"`
	TierEvent    *EmailEvent   `json:"tier_event,omitempty"`
	Terminal     TerminalFlags `json:"terminal"`
	// TerminalEvents holds the latest record per terminal event type.
	TerminalEvents map[EventType]EmailEvent `json:"terminal_events,omitempty"`
	Status         EventType                `json:"status"`
	ResolvedAt     time.Time                `json:"resolved_at"`
}

// EventCounts holds totals per event type.
type EventCounts struct {
	Sent         int `json:"sent"`
	Delivered    int `json:"delivered"`
	Opened       int `json:"opened"`
	Clicked      int `json:"clicked"`
	Bounced      int `json:"bounced"`
	SpamReported int `json:"spam_reported"`
	Unsubscribed int `json:"unsubscribed"`
}

// Record adds one event of type t.
func (c *EventCounts) Record(t EventType) {
	switch t {
	case EventSent:
		c.Sent++
	case EventDelivered:
		c.Delivered++
	case EventOpened:
		c.Opened++
	case EventClicked:
		c.Clicked++
	case EventBounced:
		c.Bounced++
	case EventSpamReported:
		c.SpamReported++
	case EventUnsubscribed:
		c.Unsubscribed++
	}
}

// Plus returns the element-wise sum of c and o.
func (c EventCounts) Plus(o EventCounts) EventCounts {
	return EventCounts{
		Sent:         c.Sent + o.Sent,
		Delivered:    c.Delivered + o.Delivered,
		Opened:       c.Opened + o.Opened,
		Clicked:      c.Clicked + o.Clicked,
		Bounced:      c.Bounced + o.Bounced,
		SpamReported: c.SpamReported + o.SpamReported,
		Unsubscribed: c.Unsubscribed + o.Unsubscribed,
	}
}

// ByType returns the counts keyed by event type.
func (c EventCounts) ByType() map[EventType]int {
	return map[EventType]int{
		EventSent:         c.Sent,
		EventDelivered:    c.Delivered,
		EventOpened:       c.Opened,
		EventClicked:      c.Clicked,
		EventBounced:      c.Bounced,
		EventSpamReported: c.SpamReported,
		EventUnsubscribed: c.Unsubscribed,
	}
}

// Rates are engagement percentages in [0,100].
type Rates struct {
	DeliveryRate    float64 `json:"delivery_rate"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	BounceRate      float64 `json:"bounce_rate"`
	ComplaintRate   float64 `json:"complaint_rate"`
	UnsubscribeRate float64 `json:"unsubscribe_rate"`
}

// CampaignAnalyticsSummary aggregates one campaign's event log.
type CampaignAnalyticsSummary struct {
	CampaignID string `json:"campaign_id"`
	// Totals counts raw events, including repeats.
	Totals EventCounts `json:"totals"`
	// Unique counts contacts by resolved status; rates derive from it.
	Unique   EventCounts `json:"unique"`
	Contacts int         `json:"contacts"`
	Rates
}

// ClientAnalyticsSummary aggregates a client's campaigns by summing totals
// before dividing.
type ClientAnalyticsSummary struct {
	ClientID  string      `json:"client_id"`
	Campaigns int         `json:"campaigns"`
	Totals    EventCounts `json:"totals"`
	Unique    EventCounts `json:"unique"`
	Contacts  int         `json:"contacts"`
	Rates
}

// TimelineFilter selects one event type, or every type with FilterAll.
type TimelineFilter string

// FilterAll disables event type filtering.
const FilterAll TimelineFilter = "ALL"

// Timeline is a filtered read-only view of a campaign's events.
type Timeline struct {
	Filter       TimelineFilter    `json:"filter"`
	Events       []EmailEvent      `json:"events"`
	CountsByType map[EventType]int `json:"counts_by_type"`
}

// DailyPerformance holds event totals for one local calendar day.
type DailyPerformance struct {
	Date   string      `json:"date"` // YYYY-MM-DD
	Counts EventCounts `json:"counts"`
	Rates
}
