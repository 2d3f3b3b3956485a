package models

// TimetableEntry is one session summarised for the weekly timetable view.
type TimetableEntry struct {
	SessionID       string        `json:"session_id"`
	Subject         string        `json:"subject"`
	TeacherID       *string       `json:"teacher_id,omitempty"`
	StartTime       string        `json:"start_time"`
	EndTime         string        `json:"end_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	Topic           *string       `json:"topic,omitempty"`
}

// TimetableDay groups a weekday's entries sorted by start time.
type TimetableDay struct {
	Day     string           `json:"day"`
	Entries []TimetableEntry `json:"entries"`
}

// WeeklyTimetable is the day-grouped projection of a batch's sessions.
type WeeklyTimetable struct {
	BatchID string         `json:"batch_id"`
	Days    []TimetableDay `json:"days"`
}
