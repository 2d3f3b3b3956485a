package models

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a teaching session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionLive      SessionStatus = "live"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

// Valid reports whether the status is one of the known states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionLive, SessionEnded, SessionCancelled:
		return true
	}
	return false
}

// CanStart reports whether a session in this state may transition to live.
func (s SessionStatus) CanStart() bool { return s == SessionScheduled }

// CanEnd reports whether a session in this state may transition to ended.
func (s SessionStatus) CanEnd() bool { return s == SessionLive }

// CanCancel reports whether a session in this state may be soft-cancelled.
func (s SessionStatus) CanCancel() bool { return s == SessionScheduled }

// CanDelete reports whether a session in this state may be permanently removed.
// Live sessions are never deletable: they must be ended first.
func (s SessionStatus) CanDelete() bool { return s != SessionLive }

// AllowedDurations lists the session lengths the product sells, in minutes.
var AllowedDurations = []int{30, 45, 60, 75, 90, 120}

// DurationAllowed reports whether minutes is a sellable session length.
func DurationAllowed(minutes int) bool {
	for _, d := range AllowedDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// SplitDuration derives the teaching/prep split for a session length.
// Teaching gets the larger of (duration-15) and 83% of the duration; prep
// absorbs the remainder so the two always sum back to the duration.
func SplitDuration(minutes int) (teaching, prep int) {
	teaching = minutes - 15
	if pct := minutes * 83 / 100; pct > teaching {
		teaching = pct
	}
	return teaching, minutes - teaching
}

// Session is one scheduled teaching occurrence owned by a batch.
type Session struct {
	ID                string        `db:"id" json:"id"`
	BatchID           string        `db:"batch_id" json:"batch_id"`
	Subject           string        `db:"subject" json:"subject"`
	TeacherID         *string       `db:"teacher_id" json:"teacher_id,omitempty"`
	ScheduledDate     time.Time     `db:"scheduled_date" json:"scheduled_date"`
	StartTime         string        `db:"start_time" json:"start_time"`
	DurationMinutes   int           `db:"duration_minutes" json:"duration_minutes"`
	TeachingMinutes   int           `db:"teaching_minutes" json:"teaching_minutes"`
	PrepBufferMinutes int           `db:"prep_buffer_minutes" json:"prep_buffer_minutes"`
	Status            SessionStatus `db:"status" json:"status"`
	RoomReference     *string       `db:"room_reference" json:"room_reference,omitempty"`
	Topic             *string       `db:"topic" json:"topic,omitempty"`
	Notes             *string       `db:"notes" json:"notes,omitempty"`
	CancelReason      *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	StartedAt         *time.Time    `db:"started_at" json:"started_at,omitempty"`
	EndedAt           *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	CancelledAt       *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// StartMinutes returns the session start as minutes since midnight.
func (s *Session) StartMinutes() (int, error) {
	return MinutesOfDay(s.StartTime)
}

// EndMinutes returns the exclusive session end as minutes since midnight.
func (s *Session) EndMinutes() (int, error) {
	start, err := MinutesOfDay(s.StartTime)
	if err != nil {
		return 0, err
	}
	return start + s.DurationMinutes, nil
}

// SessionFilter describes query params for listing a batch's sessions.
type SessionFilter struct {
	BatchID   string
	Status    string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortOrder string
}

// MinutesOfDay parses an HH:MM clock value into minutes since midnight.
func MinutesOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatMinutes renders minutes since midnight as an HH:MM clock value.
// Values past midnight wrap so a best-effort suggestion still formats.
func FormatMinutes(minutes int) string {
	minutes = ((minutes % 1440) + 1440) % 1440
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
