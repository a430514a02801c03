package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncall-sre/oncall/internal/storage"
)

func TestWeekStart(t *testing.T) {
	monday := time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, monday, weekStart(monday))
	assert.Equal(t, monday, weekStart(monday.Add(5*time.Hour)))
	assert.Equal(t, monday, weekStart(time.Date(2023, 11, 22, 13, 30, 0, 0, time.UTC)))
	assert.Equal(t, monday, weekStart(time.Date(2023, 11, 26, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, monday.AddDate(0, 0, 7), weekStart(time.Date(2023, 11, 27, 0, 0, 0, 0, time.UTC)))
}

func TestGenerateShiftsWeekly(t *testing.T) {
	monday := time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)
	template := []storage.ScheduleEvent{{Start: 9 * 3600, Duration: 8 * 3600}}

	from := monday.Unix()
	until := monday.AddDate(0, 0, 14).Unix()
	shifts := generateShifts(template, time.UTC, from, until)

	require.Len(t, shifts, 2)
	assert.Equal(t, monday.Unix()+9*3600, shifts[0].Start)
	assert.Equal(t, monday.Unix()+17*3600, shifts[0].End)
	assert.Equal(t, monday.AddDate(0, 0, 7).Unix()+9*3600, shifts[1].Start)
}

func TestGenerateShiftsMidWeekStart(t *testing.T) {
	monday := time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)
	wednesday := monday.AddDate(0, 0, 2)
	template := []storage.ScheduleEvent{{Start: 9 * 3600, Duration: 8 * 3600}}

	// this week's Monday shift already started, so only next week's remains
	shifts := generateShifts(template, time.UTC, wednesday.Unix(), monday.AddDate(0, 0, 14).Unix())
	require.Len(t, shifts, 1)
	assert.Equal(t, monday.AddDate(0, 0, 7).Unix()+9*3600, shifts[0].Start)
}

func TestGenerateShiftsMultipleEventsSorted(t *testing.T) {
	monday := time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)
	template := []storage.ScheduleEvent{
		{Start: 3 * 86400, Duration: 12 * 3600},
		{Start: 0, Duration: 12 * 3600},
	}

	shifts := generateShifts(template, time.UTC, monday.Unix(), monday.AddDate(0, 0, 7).Unix())
	require.Len(t, shifts, 2)
	assert.Equal(t, monday.Unix(), shifts[0].Start)
	assert.Equal(t, monday.Unix()+3*86400, shifts[1].Start)
}

func TestGenerateShiftsEmptyWindow(t *testing.T) {
	template := []storage.ScheduleEvent{{Start: 0, Duration: 3600}}
	assert.Nil(t, generateShifts(template, time.UTC, 100, 100))
	assert.Nil(t, generateShifts(nil, time.UTC, 0, storage.Week))
}
