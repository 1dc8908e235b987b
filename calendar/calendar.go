package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
)

// GTFS date layout.
const DateFormat = "20060102"

var ErrInvalidDateRange = errors.New("invalid date range")

type InvalidDateRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf(
		"invalid date range: start %s after end %s",
		e.Start.Format(DateFormat),
		e.End.Format(DateFormat),
	)
}

func (e *InvalidDateRangeError) Unwrap() error {
	return ErrInvalidDateRange
}

// Weekly pattern plus the dates on which the pattern doesn't
// apply. Added and Removed are sorted, unique and disjoint. Neither
// restates a date the pattern already implies.
type Calendar struct {
	Start   time.Time
	End     time.Time
	Days    parse.Weekdays
	Added   []time.Time
	Removed []time.Time
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Builds a minimal Calendar from a record's validity. Overrides are
// applied in order, so the last override for any given date wins.
func Normalize(v parse.Validity) (Calendar, error) {
	start := truncateDay(v.Start)
	end := truncateDay(v.End)
	if start.After(end) {
		return Calendar{}, &InvalidDateRangeError{Start: start, End: end}
	}

	cal := Calendar{
		Start:   start,
		End:     end,
		Days:    v.Days,
		Added:   []time.Time{},
		Removed: []time.Time{},
	}

	final := map[time.Time]bool{}
	for _, o := range v.Overrides {
		final[truncateDay(o.Date)] = o.Added
	}

	for date, active := range final {
		if active == cal.implied(date) {
			continue
		}
		if active {
			cal.Added = append(cal.Added, date)
		} else {
			cal.Removed = append(cal.Removed, date)
		}
	}

	sortDates(cal.Added)
	sortDates(cal.Removed)

	return cal, nil
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
}

// True if the weekly pattern alone has service on date.
func (c Calendar) implied(date time.Time) bool {
	if date.Before(c.Start) || date.After(c.End) {
		return false
	}
	return c.Days.Has(date.Weekday())
}

// True if there is service on the given date.
func (c Calendar) Active(date time.Time) bool {
	date = truncateDay(date)
	for _, d := range c.Added {
		if d.Equal(date) {
			return true
		}
	}
	for _, d := range c.Removed {
		if d.Equal(date) {
			return false
		}
	}
	return c.implied(date)
}

// First and last date with potential service, including added
// dates outside the weekly pattern's range.
func (c Calendar) Span() (time.Time, time.Time) {
	first, last := c.Start, c.End
	for _, d := range c.Added {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	return first, last
}

// Canonical representation. Two calendars with the same Key have
// service on exactly the same dates, and are encoded identically.
func (c Calendar) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-%s-%03d", c.Start.Format(DateFormat), c.End.Format(DateFormat), c.Days)
	for _, d := range c.Added {
		b.WriteString("+")
		b.WriteString(d.Format(DateFormat))
	}
	for _, d := range c.Removed {
		b.WriteString("-")
		b.WriteString(d.Format(DateFormat))
	}
	return b.String()
}

func (c Calendar) Equal(o Calendar) bool {
	return c.Key() == o.Key()
}

func shiftDates(dates []time.Time, days int) []time.Time {
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		out[i] = d.AddDate(0, 0, days)
	}
	return out
}

// Same service, every date moved by the given number of days.
func (c Calendar) Shift(days int) Calendar {
	var weekdays parse.Weekdays
	for d := time.Sunday; d <= time.Saturday; d++ {
		if c.Days.Has(d) {
			weekdays |= 1 << ((int(d) + days%7 + 7) % 7)
		}
	}
	return Calendar{
		Start:   c.Start.AddDate(0, 0, days),
		End:     c.End.AddDate(0, 0, days),
		Days:    weekdays,
		Added:   shiftDates(c.Added, days),
		Removed: shiftDates(c.Removed, days),
	}
}

// Encodes the calendar as calendar.txt and calendar_dates.txt rows.
func (c Calendar) Rows(serviceID string) (model.Calendar, []model.CalendarDate) {
	row := model.Calendar{
		ServiceID: serviceID,
		StartDate: c.Start.Format(DateFormat),
		EndDate:   c.End.Format(DateFormat),
		Weekday:   int8(c.Days),
	}

	dates := make([]model.CalendarDate, 0, len(c.Added)+len(c.Removed))
	for _, d := range c.Added {
		dates = append(dates, model.CalendarDate{
			ServiceID:     serviceID,
			Date:          d.Format(DateFormat),
			ExceptionType: model.ExceptionTypeAdded,
		})
	}
	for _, d := range c.Removed {
		dates = append(dates, model.CalendarDate{
			ServiceID:     serviceID,
			Date:          d.Format(DateFormat),
			ExceptionType: model.ExceptionTypeRemoved,
		})
	}
	sort.SliceStable(dates, func(i, j int) bool {
		return dates[i].Date < dates[j].Date
	})

	return row, dates
}
