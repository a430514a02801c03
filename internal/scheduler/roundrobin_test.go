package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncall-sre/oncall/internal/storage"
)

func roundRobinSchedule(lastUser *int64, order ...string) *storage.Schedule {
	return &storage.Schedule{
		TeamID:              1,
		RoleID:              1,
		Scheduler:           storage.SchedulerInfo{Name: "round-robin", Data: order},
		LastScheduledUserID: lastUser,
	}
}

func pickSequence(t *testing.T, picker Picker, sched *storage.Schedule, members []*storage.RosterMember, busy map[int64]bool, n int) []int64 {
	t.Helper()
	var got []int64
	for i := 0; i < n; i++ {
		id, found, err := picker.Pick(context.Background(), &pickerTx{}, sched, Shift{}, members, busy)
		require.NoError(t, err)
		require.True(t, found)
		got = append(got, id)
	}
	return got
}

func TestRoundRobinCycles(t *testing.T) {
	sched := roundRobinSchedule(nil, "alice", "bob", "carol")
	got := pickSequence(t, newRoundRobin(), sched, roster(1, 2, 3), nil, 5)
	assert.Equal(t, []int64{1, 2, 3, 1, 2}, got)
}

func TestRoundRobinResumesFromCursor(t *testing.T) {
	last := int64(2) // bob took the previous shift
	sched := roundRobinSchedule(&last, "alice", "bob", "carol")
	got := pickSequence(t, newRoundRobin(), sched, roster(1, 2, 3), nil, 3)
	assert.Equal(t, []int64{3, 1, 2}, got)
}

func TestRoundRobinRestartsWhenCursorUserLeft(t *testing.T) {
	last := int64(9) // no longer in the stored order
	sched := roundRobinSchedule(&last, "alice", "bob", "carol")
	got := pickSequence(t, newRoundRobin(), sched, roster(1, 2, 3), nil, 2)
	assert.Equal(t, []int64{1, 2}, got)
}

func TestRoundRobinSkipsIneligible(t *testing.T) {
	sched := roundRobinSchedule(nil, "alice", "bob", "carol")
	members := roster(1, 2, 3)
	members[1].InRotation = false

	picker := newRoundRobin()
	got := pickSequence(t, picker, sched, members, map[int64]bool{3: true}, 2)
	// bob is out of rotation and carol is busy, so alice takes both
	assert.Equal(t, []int64{1, 1}, got)
}

func TestRoundRobinNobodyAvailable(t *testing.T) {
	sched := roundRobinSchedule(nil, "alice", "bob")
	_, found, err := newRoundRobin().Pick(context.Background(), &pickerTx{}, sched, Shift{}, roster(1, 2), map[int64]bool{1: true, 2: true})
	require.NoError(t, err)
	assert.False(t, found)

	// empty order never assigns
	_, found, err = newRoundRobin().Pick(context.Background(), &pickerTx{}, roundRobinSchedule(nil), Shift{}, roster(1, 2), nil)
	require.NoError(t, err)
	assert.False(t, found)
}
