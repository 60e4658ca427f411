package engagement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/campaign-core/internal/domain"
)

// ParseTimelineFilter accepts an event type name or "ALL". An empty filter
// means ALL.
func ParseTimelineFilter(s string) (domain.TimelineFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(domain.FilterAll)) {
		return domain.FilterAll, nil
	}
	t, ok := domain.ParseEventType(s)
	if !ok {
		return "", fmt.Errorf("unknown event type filter %q", s)
	}
	return domain.TimelineFilter(t), nil
}

// ProjectTimeline returns the events matching filter ordered by timestamp,
// with counts by type over the unfiltered input. The input slice is not
// modified.
func ProjectTimeline(events []domain.EmailEvent, filter domain.TimelineFilter) domain.Timeline {
	if filter == "" {
		filter = domain.FilterAll
	}
	counts := make(map[domain.EventType]int, len(domain.AllEventTypes))
	for _, t := range domain.AllEventTypes {
		counts[t] = 0
	}

	filtered := make([]domain.EmailEvent, 0, len(events))
	for _, e := range events {
		if e.EventType.Valid() {
			counts[e.EventType]++
		}
		if filter == domain.FilterAll || domain.TimelineFilter(e.EventType) == filter {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	return domain.Timeline{Filter: filter, Events: filtered, CountsByType: counts}
}

// DailyPerformance buckets raw event totals by calendar day in loc, oldest
// day first. A nil loc means UTC.
func DailyPerformance(events []domain.EmailEvent, loc *time.Location) []domain.DailyPerformance {
	if loc == nil {
		loc = time.UTC
	}
	byDay := make(map[string]*domain.EventCounts)
	for _, e := range events {
		day := e.Timestamp.In(loc).Format("2006-01-02")
		c, ok := byDay[day]
		if !ok {
			c = &domain.EventCounts{}
			byDay[day] = c
		}
		c.Record(e.EventType)
	}

	out := make([]domain.DailyPerformance, 0, len(byDay))
	for day, c := range byDay {
		out = append(out, domain.DailyPerformance{Date: day, Counts: *c, Rates: Aggregate(*c)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
