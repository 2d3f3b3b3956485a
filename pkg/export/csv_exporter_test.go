package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchedule() Schedule {
	return Schedule{
		BatchID: "batch-1",
		Days: []ScheduleDay{
			{Name: "Monday", Entries: []ScheduleEntry{
				{Start: "09:00", End: "10:00", Subject: "physics", Teacher: "teacher-1", DurationMinutes: 60, Status: "scheduled"},
				{Start: "10:30", End: "11:15", Subject: "chemistry", DurationMinutes: 45, Status: "scheduled"},
			}},
			{Name: "Tuesday"},
			{Name: "Wednesday", Entries: []ScheduleEntry{
				{Start: "14:00", End: "15:30", Subject: "mathematics", Teacher: "teacher-2", DurationMinutes: 90, Status: "completed"},
			}},
		},
	}
}

func TestCSVExporterRendersOneRowPerSession(t *testing.T) {
	payload, err := NewCSVExporter().Render(sampleSchedule())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, scheduleColumns, records[0])
	assert.Equal(t, []string{"Monday", "09:00", "10:00", "physics", "teacher-1", "60", "scheduled"}, records[1])
	assert.Equal(t, []string{"Monday", "10:30", "11:15", "chemistry", "", "45", "scheduled"}, records[2])
	assert.Equal(t, []string{"Wednesday", "14:00", "15:30", "mathematics", "teacher-2", "90", "completed"}, records[3])
}

func TestCSVExporterEmptyWeekStillHasHeader(t *testing.T) {
	payload, err := NewCSVExporter().Render(Schedule{BatchID: "batch-1"})
	require.NoError(t, err)
	assert.Equal(t, strings.Join(scheduleColumns, ",")+"\n", string(payload))
}

func TestPDFExporterRendersDocument(t *testing.T) {
	payload, err := NewPDFExporter().Render(sampleSchedule())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}
