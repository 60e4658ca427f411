package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type cronField struct {
	name     string
	min, max int
}

// Minute, hour, day-of-month, month, day-of-week. Day-of-week accepts 7 as
// an alias for Sunday.
var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// CheckCron verifies expr is five whitespace-separated fields, each "*", a
// number, an "a-b" range, or a comma list of numbers and ranges.
func CheckCron(expr string) error {
	_, err := normalizeCron(expr)
	return err
}

// ParseCron checks expr and compiles it into a schedule evaluated in loc.
// A nil loc means UTC.
func ParseCron(expr string, loc *time.Location) (*cron.SpecSchedule, error) {
	normalized, err := normalizeCron(expr)
	if err != nil {
		return nil, err
	}
	sched, err := cron.ParseStandard(normalized)
	if err != nil {
		return nil, &InvalidCronError{Expression: expr, Reason: err.Error()}
	}
	spec, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return nil, &InvalidCronError{Expression: expr, Reason: "unsupported schedule"}
	}
	if loc == nil {
		loc = time.UTC
	}
	spec.Location = loc
	return spec, nil
}

// normalizeCron validates the grammar and rewrites day-of-week 7 to 0 so
// the expression is accepted by the cron parser.
func normalizeCron(expr string) (string, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(cronFields) {
		return "", &InvalidCronError{
			Expression: expr,
			Reason:     "want 5 fields (minute hour day-of-month month day-of-week), got " + strconv.Itoa(len(parts)),
		}
	}
	for i, p := range parts {
		f := cronFields[i]
		elems, err := checkCronField(p, f)
		if err != nil {
			return "", &InvalidCronError{Expression: expr, Field: f.name, Reason: err.Error()}
		}
		if i == 4 {
			parts[i] = foldSunday(elems)
		}
	}
	return strings.Join(parts, " "), nil
}

type cronRange struct{ lo, hi int }

type fieldErr string

func (e fieldErr) Error() string { return string(e) }

func checkCronField(s string, f cronField) ([]cronRange, error) {
	if s == "*" {
		return nil, nil
	}
	var out []cronRange
	for _, elem := range strings.Split(s, ",") {
		if elem == "" {
			return nil, fieldErr("empty list element")
		}
		loStr, hiStr, isRange := strings.Cut(elem, "-")
		lo, err := cronNumber(loStr, f)
		if err != nil {
			return nil, err
		}
		hi := lo
		if isRange {
			if hi, err = cronNumber(hiStr, f); err != nil {
				return nil, err
			}
			if lo > hi {
				return nil, fieldErr("range " + elem + " is descending")
			}
		}
		out = append(out, cronRange{lo, hi})
	}
	return out, nil
}

func cronNumber(s string, f cronField) (int, error) {
	if s == "" {
		return 0, fieldErr("missing number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fieldErr("unexpected " + strconv.QuoteRune(r))
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fieldErr(err.Error())
	}
	if n < f.min || n > f.max {
		return 0, fieldErr(s + " outside " + strconv.Itoa(f.min) + "-" + strconv.Itoa(f.max))
	}
	return n, nil
}

func foldSunday(elems []cronRange) string {
	if elems == nil {
		return "*"
	}
	var out []string
	for _, r := range elems {
		switch {
		case r.lo == 7:
			out = append(out, "0")
		case r.hi == 7:
			out = append(out, strconv.Itoa(r.lo)+"-6", "0")
		case r.lo == r.hi:
			out = append(out, strconv.Itoa(r.lo))
		default:
			out = append(out, strconv.Itoa(r.lo)+"-"+strconv.Itoa(r.hi))
		}
	}
	return strings.Join(out, ",")
}
