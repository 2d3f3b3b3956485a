package service

import (
	"sort"

	"github.com/opentutor/tutor-ops-api/internal/models"
)

// OperatingCeilingMinutes is the latest allowed session end (22:00).
const OperatingCeilingMinutes = 22 * 60

// ConflictResolution is the outcome of resolving a candidate slot against a
// batch's existing sessions on one date.
type ConflictResolution struct {
	StartMinutes    int
	Shifted         bool
	ConflictIDs     []string
	CeilingExceeded bool
}

// StartTime renders the resolved start as an HH:MM clock value.
func (r ConflictResolution) StartTime() string {
	return models.FormatMinutes(r.StartMinutes)
}

func overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && e1 > s2
}

// ResolveStartTime finds a start for the candidate interval that does not
// overlap any of the existing sessions, pushing the candidate past each
// colliding session in start order. When the shifted interval would run past
// the operating ceiling it tries to fit the candidate before the first session
// of the day; failing that it falls back to after the last session, which may
// still breach the ceiling. That fallback is deliberate: callers rely on
// always getting a suggestion, and flag the breach to the user instead.
func ResolveStartTime(candidateStart, durationMinutes int, existing []models.Session) ConflictResolution {
	type interval struct {
		id         string
		start, end int
	}

	intervals := make([]interval, 0, len(existing))
	for i := range existing {
		start, err := existing[i].StartMinutes()
		if err != nil {
			continue
		}
		intervals = append(intervals, interval{
			id:    existing[i].ID,
			start: start,
			end:   start + existing[i].DurationMinutes,
		})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	resolution := ConflictResolution{StartMinutes: candidateStart}

	start := candidateStart
	for changed := true; changed; {
		changed = false
		for _, iv := range intervals {
			if overlaps(start, start+durationMinutes, iv.start, iv.end) {
				start = iv.end
				resolution.ConflictIDs = appendUnique(resolution.ConflictIDs, iv.id)
				changed = true
			}
		}
	}

	shifted := start != candidateStart
	if shifted && start+durationMinutes > OperatingCeilingMinutes && len(intervals) > 0 {
		if before := intervals[0].start - durationMinutes; before >= 0 {
			resolution.StartMinutes = before
			resolution.Shifted = before != candidateStart
			return resolution
		}
		last := intervals[len(intervals)-1]
		start = last.end
		resolution.CeilingExceeded = start+durationMinutes > OperatingCeilingMinutes
	}

	resolution.StartMinutes = start
	resolution.Shifted = start != candidateStart
	return resolution
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
