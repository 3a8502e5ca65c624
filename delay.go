package engine

import (
	"regexp"
	"strconv"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// TimeFormat is the fixed precision format of persisted due dates.
const TimeFormat = "2006-01-02 15:04:05"

var (
	businessDaysPattern = regexp.MustCompile(`^(\d+)wd$`)
	daysPattern         = regexp.MustCompile(`^(\d+)d$`)
	hoursPattern        = regexp.MustCompile(`^(\d+)h$`)
	minutesPattern      = regexp.MustCompile(`^(\d+)m$`)
)

var absoluteFormats = []string{
	TimeFormat,
	time.RFC3339,
	"2006-01-02",
}

// DueDate turns a delay spec into an absolute due date. First match wins:
// "<N>wd" business days, "<N>d" calendar days, "<N>h" hours, "<N>m" minutes,
// otherwise the spec is parsed as an absolute date/time. Specs that resolve to
// nothing parseable fail with ErrInvalidTimeFormat.
func DueDate(spec string, now time.Time) (time.Time, error) {
	if m := businessDaysPattern.FindStringSubmatch(spec); m != nil {
		n, _ := strconv.Atoi(m[1])
		return addBusinessDays(now, n), nil
	}

	if m := daysPattern.FindStringSubmatch(spec); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.AddDate(0, 0, n), nil
	}

	if m := hoursPattern.FindStringSubmatch(spec); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(time.Duration(n) * time.Hour), nil
	}

	if m := minutesPattern.FindStringSubmatch(spec); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(time.Duration(n) * time.Minute), nil
	}

	for _, format := range absoluteFormats {
		t, err := time.ParseInLocation(format, spec, now.Location())
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.Wrap(ErrInvalidTimeFormat, "", j.KV("spec", spec))
}

// addBusinessDays advances now by n business days, then re-expresses that
// advance as the equivalent calendar-day span added to now. The two-step
// translation converts a business-day offset into the calendar delay stored
// on the due-date field; existing due dates depend on it.
func addBusinessDays(now time.Time, n int) time.Time {
	advanced := now
	for remaining := n; remaining > 0; {
		advanced = advanced.AddDate(0, 0, 1)
		if isBusinessDay(advanced) {
			remaining--
		}
	}

	span := calendarDaysBetween(now, advanced)
	return now.AddDate(0, 0, span)
}

func isBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

func calendarDaysBetween(from, to time.Time) int {
	fromDate := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toDate := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(toDate.Sub(fromDate).Hours() / 24)
}
