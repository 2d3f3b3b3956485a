package service

import (
	"sort"
	"strings"
	"time"

	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
)

// HorizonUnit selects how a recurrence horizon is measured.
type HorizonUnit string

const (
	HorizonWeeks  HorizonUnit = "weeks"
	HorizonMonths HorizonUnit = "months"
)

// Recurrence describes a weekday-pattern template to expand into sessions.
type Recurrence struct {
	Weekdays     []string    `json:"weekdays" validate:"required,min=1"`
	HorizonCount int         `json:"horizon_count" validate:"required,min=1,max=52"`
	HorizonUnit  HorizonUnit `json:"horizon_unit" validate:"required,oneof=weeks months"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekdays converts day names into weekdays, rejecting unknown names.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]bool, len(names))
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown weekday: "+name)
		}
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	return days, nil
}

// ExpandRecurrence turns a weekday set, a start date and a horizon into the
// ordered list of concrete dates inside [start, end), where end is start plus
// the horizon in calendar weeks or months.
func ExpandRecurrence(weekdays []time.Weekday, start time.Time, count int, unit HorizonUnit) []time.Time {
	start = truncateToDay(start)

	var end time.Time
	if unit == HorizonMonths {
		end = start.AddDate(0, count, 0)
	} else {
		end = start.AddDate(0, 0, count*7)
	}

	days := int(end.Sub(start).Hours() / 24)
	// Scan one extra week so weekdays that fall earlier in the week than the
	// start date are still picked up in the boundary week.
	weeks := (days+6)/7 + 1

	seen := make(map[string]bool)
	var dates []time.Time
	for w := 0; w < weeks; w++ {
		for _, day := range weekdays {
			offset := (int(day) - int(start.Weekday()) + 7) % 7
			date := start.AddDate(0, 0, w*7+offset)
			if date.Before(start) || !date.Before(end) {
				continue
			}
			key := date.Format("2006-01-02")
			if seen[key] {
				continue
			}
			seen[key] = true
			dates = append(dates, date)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
