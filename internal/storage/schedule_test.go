package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeScheduleEvents(t *testing.T) {
	tests := []struct {
		name   string
		in     []ScheduleEvent
		expect []ScheduleEvent
	}{
		{
			name:   "empty",
			in:     nil,
			expect: nil,
		},
		{
			name:   "touching events coalesce",
			in:     []ScheduleEvent{{Start: 0, Duration: Hour}, {Start: Hour, Duration: Hour}},
			expect: []ScheduleEvent{{Start: 0, Duration: 2 * Hour}},
		},
		{
			name:   "gap keeps events separate",
			in:     []ScheduleEvent{{Start: 0, Duration: Hour}, {Start: 3 * Hour, Duration: Hour}},
			expect: []ScheduleEvent{{Start: 0, Duration: Hour}, {Start: 3 * Hour, Duration: Hour}},
		},
		{
			name: "unsorted input merges after sorting",
			in: []ScheduleEvent{
				{Start: 2 * Hour, Duration: Hour},
				{Start: 0, Duration: Hour},
				{Start: Hour, Duration: Hour},
			},
			expect: []ScheduleEvent{{Start: 0, Duration: 3 * Hour}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, MergeScheduleEvents(tt.in))
		})
	}
}

func TestValidSimpleSchedule(t *testing.T) {
	twelveHour := func(n int) []ScheduleEvent {
		events := make([]ScheduleEvent, n)
		for i := range events {
			events[i] = ScheduleEvent{Start: int64(i) * 12 * Hour, Duration: 12 * Hour}
		}
		return events
	}

	assert.True(t, ValidSimpleSchedule([]ScheduleEvent{{Duration: Week}}))
	assert.True(t, ValidSimpleSchedule([]ScheduleEvent{{Duration: 2 * Week}}))
	assert.True(t, ValidSimpleSchedule(twelveHour(7)))
	assert.True(t, ValidSimpleSchedule(twelveHour(14)))

	assert.False(t, ValidSimpleSchedule([]ScheduleEvent{{Duration: 3 * Hour}}))
	assert.False(t, ValidSimpleSchedule(twelveHour(5)))
	assert.False(t, ValidSimpleSchedule(append(twelveHour(6), ScheduleEvent{Duration: Hour})))
}
