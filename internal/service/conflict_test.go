package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentutor/tutor-ops-api/internal/models"
)

func session(id, start string, duration int) models.Session {
	return models.Session{ID: id, StartTime: start, DurationMinutes: duration, Status: models.SessionScheduled}
}

func TestResolveStartTimeNoConflicts(t *testing.T) {
	resolution := ResolveStartTime(9*60, 60, nil)
	assert.Equal(t, "09:00", resolution.StartTime())
	assert.False(t, resolution.Shifted)
	assert.Empty(t, resolution.ConflictIDs)
	assert.False(t, resolution.CeilingExceeded)
}

func TestResolveStartTimePushesPastOverlap(t *testing.T) {
	existing := []models.Session{session("s-1", "09:30", 60)}

	resolution := ResolveStartTime(9*60, 90, existing)
	assert.Equal(t, "10:30", resolution.StartTime())
	assert.True(t, resolution.Shifted)
	assert.Equal(t, []string{"s-1"}, resolution.ConflictIDs)
	assert.False(t, resolution.CeilingExceeded)
}

func TestResolveStartTimeChainsThroughBackToBack(t *testing.T) {
	existing := []models.Session{
		session("s-1", "09:00", 60),
		session("s-2", "10:00", 60),
	}

	resolution := ResolveStartTime(9*60+30, 45, existing)
	assert.Equal(t, "11:00", resolution.StartTime())
	assert.True(t, resolution.Shifted)
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, resolution.ConflictIDs)
}

func TestResolveStartTimeRelocatesBeforeFirstWhenPastCeiling(t *testing.T) {
	existing := []models.Session{
		session("s-1", "20:00", 60),
		session("s-2", "21:00", 60),
	}

	resolution := ResolveStartTime(20*60+30, 90, existing)
	assert.Equal(t, "18:30", resolution.StartTime())
	assert.True(t, resolution.Shifted)
	assert.False(t, resolution.CeilingExceeded)
}

func TestResolveStartTimeBestEffortPastCeiling(t *testing.T) {
	// The first session starts too early to fit the candidate before it, so
	// the resolver settles for after the last session and flags the breach.
	existing := []models.Session{
		session("s-1", "01:00", 60),
		session("s-2", "21:00", 60),
	}

	resolution := ResolveStartTime(21*60+30, 90, existing)
	assert.Equal(t, "22:00", resolution.StartTime())
	assert.True(t, resolution.Shifted)
	assert.True(t, resolution.CeilingExceeded)
}

func TestResolveStartTimeUnshiftedLateCandidateKeptAsIs(t *testing.T) {
	// A candidate that merely runs late without colliding is not relocated.
	existing := []models.Session{session("s-1", "09:00", 60)}

	resolution := ResolveStartTime(21*60+30, 90, existing)
	assert.Equal(t, "21:30", resolution.StartTime())
	assert.False(t, resolution.Shifted)
	assert.False(t, resolution.CeilingExceeded)
}

func TestResolveStartTimeIgnoresMalformedRows(t *testing.T) {
	existing := []models.Session{
		{ID: "bad", StartTime: "not-a-time", DurationMinutes: 60},
		session("s-1", "09:30", 60),
	}

	resolution := ResolveStartTime(9*60, 90, existing)
	require.Equal(t, "10:30", resolution.StartTime())
	assert.Equal(t, []string{"s-1"}, resolution.ConflictIDs)
}
