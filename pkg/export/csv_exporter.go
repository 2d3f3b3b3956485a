package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// Schedule is a batch's weekly timetable flattened for download.
type Schedule struct {
	BatchID string
	Days    []ScheduleDay
}

// ScheduleDay holds one weekday's entries in start-time order.
type ScheduleDay struct {
	Name    string
	Entries []ScheduleEntry
}

// ScheduleEntry is a single session row. Times are "HH:MM" wall clock.
type ScheduleEntry struct {
	Start           string
	End             string
	Subject         string
	Teacher         string
	DurationMinutes int
	Status          string
}

// scheduleColumns is the column order shared by both export formats.
var scheduleColumns = []string{"day", "start_time", "end_time", "subject", "teacher", "duration_minutes", "status"}

func (e ScheduleEntry) record(day string) []string {
	return []string{
		day,
		e.Start,
		e.End,
		e.Subject,
		e.Teacher,
		strconv.Itoa(e.DurationMinutes),
		e.Status,
	}
}

// CSVExporter renders a weekly schedule as CSV, one row per session.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV bytes for the schedule. Days without sessions are
// omitted; the header row is always present so an empty week still downloads
// as a valid file.
func (e *CSVExporter) Render(schedule Schedule) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(scheduleColumns); err != nil {
		return nil, fmt.Errorf("write schedule header: %w", err)
	}
	for _, day := range schedule.Days {
		for _, entry := range day.Entries {
			if err := writer.Write(entry.record(day.Name)); err != nil {
				return nil, fmt.Errorf("write schedule row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush schedule csv: %w", err)
	}
	return buf.Bytes(), nil
}
