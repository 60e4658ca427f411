package recurrence

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-core/internal/domain"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(n int) *int              { return &n }

var testStart = time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)

func TestValidate_NoneIgnoresOtherFields(t *testing.T) {
	rule, err := Validate(domain.RuleInput{
		Frequency:      "NONE",
		TimeOfDay:      "25:99",
		CronExpression: "garbage",
		DaysOfWeek:     []int{},
	})
	require.NoError(t, err)
	assert.Nil(t, rule.Schedule)
	assert.Equal(t, domain.FrequencyNone, rule.Frequency())
}

func TestValidate_EmptyFrequencyMeansNone(t *testing.T) {
	rule, err := Validate(domain.RuleInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyNone, rule.Frequency())
}

func TestValidate_WeeklyRequiresADay(t *testing.T) {
	in := domain.RuleInput{
		Frequency: "WEEKLY",
		TimeOfDay: "09:30",
		Timezone:  "America/New_York",
		StartDate: ptrTime(testStart),
	}

	_, err := Validate(in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRule))
	assert.True(t, errors.Is(err, ErrEmptySelection))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fe, ok := verr.Field("days_of_week")
	require.True(t, ok)
	assert.Equal(t, CodeEmptySelection, fe.Code)

	in.DaysOfWeek = []int{1}
	rule, err := Validate(in)
	require.NoError(t, err)
	ws, ok := rule.Schedule.(domain.WeeklySchedule)
	require.True(t, ok)
	assert.True(t, ws.Days.Has(time.Monday))
	assert.False(t, ws.Biweekly)
	assert.Equal(t, domain.TimeOfDay{Hour: 9, Minute: 30}, ws.At)
	assert.Equal(t, "America/New_York", ws.Location.String())
}

func TestValidate_Violations(t *testing.T) {
	end := testStart.Add(-time.Hour)

	tests := []struct {
		name  string
		in    domain.RuleInput
		field string
		code  string
		is    error
	}{
		{
			name:  "unknown frequency",
			in:    domain.RuleInput{Frequency: "HOURLY"},
			field: "frequency",
			code:  CodeInvalid,
		},
		{
			name:  "daily without time",
			in:    domain.RuleInput{Frequency: "DAILY", Timezone: "UTC", StartDate: ptrTime(testStart)},
			field: "time_of_day",
			code:  CodeRequired,
		},
		{
			name:  "daily with malformed time",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "9am", Timezone: "UTC", StartDate: ptrTime(testStart)},
			field: "time_of_day",
			code:  CodeInvalid,
		},
		{
			name:  "daily with signed hour",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "+9:00", Timezone: "UTC", StartDate: ptrTime(testStart)},
			field: "time_of_day",
			code:  CodeInvalid,
		},
		{
			name:  "daily with one-digit hour",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "9:00", Timezone: "UTC", StartDate: ptrTime(testStart)},
			field: "time_of_day",
			code:  CodeInvalid,
		},
		{
			name:  "daily with signed minute",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "09:+5", Timezone: "UTC", StartDate: ptrTime(testStart)},
			field: "time_of_day",
			code:  CodeInvalid,
		},
		{
			name:  "daily without timezone",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "09:00", StartDate: ptrTime(testStart)},
			field: "timezone",
			code:  CodeRequired,
		},
		{
			name:  "unknown timezone",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "09:00", Timezone: "Mars/Olympus_Mons", StartDate: ptrTime(testStart)},
			field: "timezone",
			code:  CodeUnknownTimezone,
			is:    ErrUnknownTimezone,
		},
		{
			name:  "missing start date",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "09:00", Timezone: "UTC"},
			field: "start_date",
			code:  CodeRequired,
		},
		{
			name:  "end before start",
			in:    domain.RuleInput{Frequency: "DAILY", TimeOfDay: "09:00", Timezone: "UTC", StartDate: ptrTime(testStart), EndDate: &end},
			field: "end_date",
			code:  CodeOutOfRange,
		},
		{
			name:  "weekday out of range",
			in:    domain.RuleInput{Frequency: "BIWEEKLY", TimeOfDay: "09:00", Timezone: "UTC", StartDate: ptrTime(testStart), DaysOfWeek: []int{7}},
			field: "days_of_week",
			code:  CodeOutOfRange,
		},
		{
			name:  "monthly without day",
			in:    domain.RuleInput{Frequency: "MONTHLY", TimeOfDay: "09:00", Timezone: "UTC", StartDate: ptrTime(testStart)},
			field: "day_of_month",
			code:  CodeRequired,
		},
		{
			name:  "monthly day zero",
			in:    domain.RuleInput{Frequency: "MONTHLY", TimeOfDay: "09:00", Timezone: "UTC", StartDate: ptrTime(testStart), DayOfMonth: ptrInt(0)},
			field: "day_of_month",
			code:  CodeOutOfRange,
		},
		{
			name:  "monthly day 32",
			in:    domain.RuleInput{Frequency: "MONTHLY", TimeOfDay: "09:00", Timezone: "UTC", StartDate: ptrTime(testStart), DayOfMonth: ptrInt(32)},
			field: "day_of_month",
			code:  CodeOutOfRange,
		},
		{
			name:  "custom without expression",
			in:    domain.RuleInput{Frequency: "CUSTOM", StartDate: ptrTime(testStart)},
			field: "cron_expression",
			code:  CodeRequired,
		},
		{
			name:  "custom with four fields",
			in:    domain.RuleInput{Frequency: "CUSTOM", CronExpression: "0 9 * *", StartDate: ptrTime(testStart)},
			field: "cron_expression",
			code:  CodeInvalidCron,
			is:    ErrInvalidCron,
		},
		{
			name:  "custom with step syntax",
			in:    domain.RuleInput{Frequency: "CUSTOM", CronExpression: "*/5 * * * *", StartDate: ptrTime(testStart)},
			field: "cron_expression",
			code:  CodeInvalidCron,
			is:    ErrInvalidCron,
		},
		{
			name:  "custom with unknown timezone",
			in:    domain.RuleInput{Frequency: "CUSTOM", CronExpression: "0 9 * * *", Timezone: "Nowhere/City", StartDate: ptrTime(testStart)},
			field: "timezone",
			code:  CodeUnknownTimezone,
			is:    ErrUnknownTimezone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.in)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			fe, ok := verr.Field(tt.field)
			require.True(t, ok, "expected error on %s, got %v", tt.field, err)
			assert.Equal(t, tt.code, fe.Code)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	_, err := Validate(domain.RuleInput{Frequency: "MONTHLY"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := map[string]bool{}
	for _, fe := range verr.Errors {
		fields[fe.Field] = true
	}
	assert.Equal(t, map[string]bool{
		"start_date":   true,
		"time_of_day":  true,
		"timezone":     true,
		"day_of_month": true,
	}, fields)
}

func TestValidate_CustomDropsIrrelevantFields(t *testing.T) {
	rule, err := Validate(domain.RuleInput{
		Frequency:      "custom",
		CronExpression: "0 9 * * 1-5",
		TimeOfDay:      "10:00",
		DaysOfWeek:     []int{3},
		DayOfMonth:     ptrInt(12),
		StartDate:      ptrTime(testStart),
	})
	require.NoError(t, err)
	cs, ok := rule.Schedule.(domain.CronSchedule)
	require.True(t, ok)
	assert.Equal(t, "0 9 * * 1-5", cs.Expression)
	assert.Nil(t, cs.Location)

	in := rule.Input()
	assert.Empty(t, in.TimeOfDay)
	assert.Empty(t, in.DaysOfWeek)
	assert.Nil(t, in.DayOfMonth)
}

func TestValidate_InputRoundTrip(t *testing.T) {
	in := domain.RuleInput{
		ID:         "rule-1",
		CampaignID: "camp-1",
		Frequency:  "BIWEEKLY",
		TimeOfDay:  "07:05",
		Timezone:   "Europe/Berlin",
		DaysOfWeek: []int{5, 1},
		StartDate:  ptrTime(testStart),
	}
	rule, err := Validate(in)
	require.NoError(t, err)

	again, err := Validate(rule.Input())
	require.NoError(t, err)
	assert.Equal(t, rule.Frequency(), again.Frequency())
	assert.Equal(t, rule.Schedule.(domain.WeeklySchedule).Days, again.Schedule.(domain.WeeklySchedule).Days)
	assert.Equal(t, []int{1, 5}, again.Input().DaysOfWeek)
}
