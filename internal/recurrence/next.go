package recurrence

import (
	"fmt"
	"time"

	"github.com/ignite/campaign-core/internal/domain"
)

// maxScanDays bounds the day-by-day weekly scan; two full weeks plus slack
// always reach a biweekly match.
const maxScanDays = 22

// NextFireAfter returns the soonest fire of rule strictly after reference.
// ok is false when the rule never fires again: it does not repeat, or the
// next slot falls after EndDate. A slot at or before LastFiredAt is never
// returned, so re-evaluating a rule after a confirmed fire is idempotent.
//
// NextFireAfter is pure and safe for concurrent use.
func NextFireAfter(rule domain.RecurrenceRule, reference time.Time) (next time.Time, ok bool, err error) {
	if rule.Schedule == nil {
		return time.Time{}, false, nil
	}

	floor := reference
	if rule.LastFiredAt != nil && rule.LastFiredAt.After(floor) {
		floor = *rule.LastFiredAt
	}
	// StartDate is inclusive: a slot exactly at StartDate is eligible unless
	// the reference itself is already there.
	if !rule.StartDate.IsZero() && floor.Before(rule.StartDate) {
		floor = rule.StartDate.Add(-time.Nanosecond)
	}

	switch s := rule.Schedule.(type) {
	case domain.DailySchedule:
		next, ok = nextDaily(s, floor)
	case domain.WeeklySchedule:
		next, ok = nextWeekly(s, rule.StartDate, floor)
	case domain.MonthlySchedule:
		next, ok = nextMonthly(s, floor)
	case domain.CronSchedule:
		next, ok, err = nextCron(s, floor)
	default:
		return time.Time{}, false, fmt.Errorf("%w: unsupported schedule %T", ErrInvalidRule, rule.Schedule)
	}
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	if rule.EndDate != nil && next.After(*rule.EndDate) {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// Upcoming returns up to n successive fires after reference.
func Upcoming(rule domain.RecurrenceRule, reference time.Time, n int) ([]time.Time, error) {
	var out []time.Time
	for len(out) < n {
		next, ok, err := NextFireAfter(rule, reference)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, next)
		reference = next
	}
	return out, nil
}

// DueAt reports the slot a sweep at now should fire. Only slots inside
// (now-window, now] are considered; when several unfired slots are inside
// the window they coalesce into the latest one.
func DueAt(rule domain.RecurrenceRule, now time.Time, window time.Duration) (time.Time, bool, error) {
	slot, ok, err := NextFireAfter(rule, now.Add(-window))
	if err != nil || !ok || slot.After(now) {
		return time.Time{}, false, err
	}
	for {
		next, more, err := NextFireAfter(rule, slot)
		if err != nil {
			return time.Time{}, false, err
		}
		if !more || next.After(now) {
			return slot, true, nil
		}
		slot = next
	}
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func nextDaily(s domain.DailySchedule, floor time.Time) (time.Time, bool) {
	local := floor.In(location(s.Location))
	for i := 0; i <= 2; i++ {
		c := s.At.On(local.Year(), local.Month(), local.Day()+i, local.Location())
		if c.After(floor) {
			return c, true
		}
	}
	return time.Time{}, false
}

func nextWeekly(s domain.WeeklySchedule, start, floor time.Time) (time.Time, bool) {
	if s.Days.Empty() {
		return time.Time{}, false
	}
	loc := location(s.Location)
	local := floor.In(loc)
	anchor := weekAnchor(start.In(loc))
	for i := 0; i <= maxScanDays; i++ {
		y, m, d := local.Year(), local.Month(), local.Day()+i
		day := time.Date(y, m, d, 12, 0, 0, 0, loc) // noon avoids DST edges
		if !s.Days.Has(day.Weekday()) {
			continue
		}
		if s.Biweekly && !start.IsZero() && weekIndex(anchor, day)%2 != 0 {
			continue
		}
		c := s.At.On(y, m, d, loc)
		if c.After(floor) {
			return c, true
		}
	}
	return time.Time{}, false
}

// weekAnchor returns the Sunday that starts the local week containing t, as
// a UTC civil date.
func weekAnchor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()-int(t.Weekday()), 0, 0, 0, 0, time.UTC)
}

// weekIndex counts whole Sunday-anchored weeks from anchor to day's date.
func weekIndex(anchor, day time.Time) int {
	civil := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	days := int(civil.Sub(anchor).Hours() / 24)
	w := days / 7
	if days < 0 && days%7 != 0 {
		w--
	}
	return w
}

func nextMonthly(s domain.MonthlySchedule, floor time.Time) (time.Time, bool) {
	loc := location(s.Location)
	local := floor.In(loc)
	for i := 0; i <= 12; i++ {
		first := time.Date(local.Year(), local.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		day := s.DayOfMonth
		if last := daysIn(first.Year(), first.Month()); day > last {
			day = last
		}
		c := s.At.On(first.Year(), first.Month(), day, loc)
		if c.After(floor) {
			return c, true
		}
	}
	return time.Time{}, false
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func nextCron(s domain.CronSchedule, floor time.Time) (time.Time, bool, error) {
	spec, err := ParseCron(s.Expression, location(s.Location))
	if err != nil {
		return time.Time{}, false, err
	}
	next := spec.Next(floor)
	if next.IsZero() {
		// No match within the parser's search horizon (e.g. "0 0 31 2 *").
		return time.Time{}, false, nil
	}
	return next, true, nil
}
