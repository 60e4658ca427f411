package domain

import (
	"fmt"
	"strings"
	"time"
)

// Frequency enumerates the send cadences a campaign can repeat on.
type Frequency string

const (
	FrequencyNone     Frequency = "NONE"
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyCustom   Frequency = "CUSTOM"
)

// ParseFrequency normalizes a loosely typed frequency string from the editor.
// An empty value means the campaign does not repeat.
func ParseFrequency(s string) (Frequency, bool) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return FrequencyNone, true
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyCustom:
		return f, true
	default:
		return "", false
	}
}

// TimeOfDay is a wall-clock hour:minute, interpreted in a rule's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" on a 24-hour clock. Both fields are exactly
// two digits.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	hour, ok := twoDigits(h)
	if !ok || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: hour must be 00-23", s)
	}
	minute, ok := twoDigits(m)
	if !ok || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: minute must be 00-59", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant this time of day falls on the given civil date.
// A time inside a spring-forward gap is read with the offset in force
// before the transition, so 02:30 on a day that skips 02:00-03:00 lands at
// 03:30, never before the requested wall-clock time.
func (t TimeOfDay) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	c := time.Date(year, month, day, t.Hour, t.Minute, 0, 0, loc)
	if c.Hour() == t.Hour && c.Minute() == t.Minute {
		return c
	}
	_, before := c.Add(-12 * time.Hour).Zone()
	wall := time.Date(year, month, day, t.Hour, t.Minute, 0, 0, time.UTC)
	return wall.Add(-time.Duration(before) * time.Second).In(loc)
}

// WeekdaySet is a bitmask of weekdays, bit 0 = Sunday.
type WeekdaySet uint8

// NewWeekdaySet builds a set from the given days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

// Empty reports whether no day is selected.
func (s WeekdaySet) Empty() bool { return s&0x7f == 0 }

// Days returns the selected days, Sunday first.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Schedule is the frequency-specific part of a RecurrenceRule. Exactly one
// variant is set per rule; a FrequencyNone rule has none.
type Schedule interface {
	Frequency() Frequency
}

// DailySchedule fires once a day at a wall-clock time.
type DailySchedule struct {
	At       TimeOfDay
	Location *time.Location
}

// WeeklySchedule fires on selected weekdays. Biweekly schedules only fire in
// even weeks counted from the week containing the rule's start date.
type WeeklySchedule struct {
	At       TimeOfDay
	Location *time.Location
	Days     WeekdaySet
	Biweekly bool
}

// MonthlySchedule fires on a day of the month, clamped to the month's length.
type MonthlySchedule struct {
	At         TimeOfDay
	Location   *time.Location
	DayOfMonth int
}

// CronSchedule fires on a standard 5-field cron expression. A nil Location
// means UTC.
type CronSchedule struct {
	Expression string
	Location   *time.Location
}

func (DailySchedule) Frequency() Frequency { return FrequencyDaily }
func (s WeeklySchedule) Frequency() Frequency {
	if s.Biweekly {
		return FrequencyBiweekly
	}
	return FrequencyWeekly
}
func (MonthlySchedule) Frequency() Frequency { return FrequencyMonthly }
func (CronSchedule) Frequency() Frequency    { return FrequencyCustom }

// RecurrenceRule is a validated campaign send cadence.
type RecurrenceRule struct {
	ID          string
	CampaignID  string
	ClientID    string
	Schedule    Schedule // nil when the campaign does not repeat
	StartDate   time.Time
	EndDate     *time.Time
	LastFiredAt *time.Time // owned by the sweep worker
}

// Frequency returns the rule's cadence.
func (r RecurrenceRule) Frequency() Frequency {
	if r.Schedule == nil {
		return FrequencyNone
	}
	return r.Schedule.Frequency()
}

// Input converts the rule back to its editor/storage shape.
func (r RecurrenceRule) Input() RuleInput {
	in := RuleInput{
		ID:          r.ID,
		CampaignID:  r.CampaignID,
		ClientID:    r.ClientID,
		Frequency:   string(r.Frequency()),
		EndDate:     r.EndDate,
		LastFiredAt: r.LastFiredAt,
	}
	if !r.StartDate.IsZero() {
		start := r.StartDate
		in.StartDate = &start
	}
	switch s := r.Schedule.(type) {
	case DailySchedule:
		in.TimeOfDay = s.At.String()
		in.Timezone = s.Location.String()
	case WeeklySchedule:
		in.TimeOfDay = s.At.String()
		in.Timezone = s.Location.String()
		for _, d := range s.Days.Days() {
			in.DaysOfWeek = append(in.DaysOfWeek, int(d))
		}
	case MonthlySchedule:
		in.TimeOfDay = s.At.String()
		in.Timezone = s.Location.String()
		dom := s.DayOfMonth
		in.DayOfMonth = &dom
	case CronSchedule:
		in.CronExpression = s.Expression
		if s.Location != nil {
			in.Timezone = s.Location.String()
		}
	}
	return in
}

// RuleInput is the loosely typed schedule payload sent by the campaign
// editor and stored by the CRUD layer. Fields irrelevant to the chosen
// frequency may be populated; validation drops them.
type RuleInput struct {
	ID             string     `json:"id,omitempty" db:"id"`
	CampaignID     string     `json:"campaign_id,omitempty" db:"campaign_id"`
	ClientID       string     `json:"client_id,omitempty" db:"client_id"`
	Frequency      string     `json:"frequency" db:"frequency"`
	TimeOfDay      string     `json:"time_of_day,omitempty" db:"time_of_day"`
	Timezone       string     `json:"timezone,omitempty" db:"timezone"`
	DaysOfWeek     []int      `json:"days_of_week,omitempty" db:"days_of_week"`
	DayOfMonth     *int       `json:"day_of_month,omitempty" db:"day_of_month"`
	CronExpression string     `json:"cron_expression,omitempty" db:"cron_expression"`
	StartDate      *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty" db:"end_date"`
	LastFiredAt    *time.Time `json:"last_fired_at,omitempty" db:"last_fired_at"`
}
