package recurrence

import (
	"strconv"
	"time"

	"github.com/ignite/campaign-core/internal/domain"
)

// Validate converts an editor payload into a typed rule, or returns a
// *ValidationError listing every violated field. Fields that don't apply to
// the chosen frequency are ignored.
func Validate(in domain.RuleInput) (domain.RecurrenceRule, error) {
	verr := &ValidationError{}
	rule := domain.RecurrenceRule{
		ID:          in.ID,
		CampaignID:  in.CampaignID,
		ClientID:    in.ClientID,
		EndDate:     in.EndDate,
		LastFiredAt: in.LastFiredAt,
	}

	freq, ok := domain.ParseFrequency(in.Frequency)
	if !ok {
		verr.add("frequency", CodeInvalid, "unknown frequency "+strconv.Quote(in.Frequency), nil)
		return domain.RecurrenceRule{}, verr
	}

	if freq == domain.FrequencyNone {
		// One-shot sends are scheduled elsewhere; nothing else is required.
		if in.StartDate != nil {
			rule.StartDate = *in.StartDate
		}
		rule.EndDate = nil
		return rule, nil
	}

	if in.StartDate == nil || in.StartDate.IsZero() {
		verr.add("start_date", CodeRequired, "start date is required for recurring campaigns", nil)
	} else {
		rule.StartDate = *in.StartDate
		if in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
			verr.add("end_date", CodeOutOfRange, "end date must not precede start date", nil)
		}
	}

	switch freq {
	case domain.FrequencyCustom:
		var loc *time.Location
		if in.Timezone != "" {
			loc = loadLocation(verr, in.Timezone)
		}
		if in.CronExpression == "" {
			verr.add("cron_expression", CodeRequired, "cron expression is required for custom frequency",
				&InvalidCronError{Reason: "empty expression"})
		} else if err := CheckCron(in.CronExpression); err != nil {
			verr.add("cron_expression", CodeInvalidCron, err.Error(), err)
		}
		rule.Schedule = domain.CronSchedule{Expression: in.CronExpression, Location: loc}

	default:
		at, loc := timeAndZone(verr, in)
		switch freq {
		case domain.FrequencyDaily:
			rule.Schedule = domain.DailySchedule{At: at, Location: loc}
		case domain.FrequencyWeekly, domain.FrequencyBiweekly:
			rule.Schedule = domain.WeeklySchedule{
				At:       at,
				Location: loc,
				Days:     weekdays(verr, in.DaysOfWeek),
				Biweekly: freq == domain.FrequencyBiweekly,
			}
		case domain.FrequencyMonthly:
			dom := 0
			if in.DayOfMonth == nil {
				verr.add("day_of_month", CodeRequired, "day of month is required for monthly frequency", nil)
			} else if dom = *in.DayOfMonth; dom < 1 || dom > 31 {
				verr.add("day_of_month", CodeOutOfRange, "day of month must be between 1 and 31", nil)
			}
			rule.Schedule = domain.MonthlySchedule{At: at, Location: loc, DayOfMonth: dom}
		}
	}

	if len(verr.Errors) > 0 {
		return domain.RecurrenceRule{}, verr
	}
	return rule, nil
}

func timeAndZone(verr *ValidationError, in domain.RuleInput) (domain.TimeOfDay, *time.Location) {
	var at domain.TimeOfDay
	if in.TimeOfDay == "" {
		verr.add("time_of_day", CodeRequired, "time of day is required", nil)
	} else if t, err := domain.ParseTimeOfDay(in.TimeOfDay); err != nil {
		verr.add("time_of_day", CodeInvalid, err.Error(), err)
	} else {
		at = t
	}

	if in.Timezone == "" {
		verr.add("timezone", CodeRequired, "timezone is required", nil)
		return at, nil
	}
	return at, loadLocation(verr, in.Timezone)
}

func loadLocation(verr *ValidationError, name string) *time.Location {
	loc, err := LoadLocation(name)
	if err != nil {
		verr.add("timezone", CodeUnknownTimezone, err.Error(), err)
		return nil
	}
	return loc
}

func weekdays(verr *ValidationError, days []int) domain.WeekdaySet {
	var set domain.WeekdaySet
	for _, d := range days {
		if d < 0 || d > 6 {
			verr.add("days_of_week", CodeOutOfRange, "weekday "+strconv.Itoa(d)+" outside 0-6", nil)
			continue
		}
		set |= domain.NewWeekdaySet(time.Weekday(d))
	}
	if len(days) == 0 {
		err := &EmptySelectionError{Field: "days_of_week"}
		verr.add("days_of_week", CodeEmptySelection, err.Error(), err)
	}
	return set
}

// LoadLocation resolves an IANA zone from the runtime's zone database.
// The empty name is rejected rather than silently meaning UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, &UnknownTimezoneError{Name: name}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &UnknownTimezoneError{Name: name, Err: err}
	}
	return loc, nil
}
