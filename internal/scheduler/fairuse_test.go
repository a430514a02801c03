package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncall-sre/oncall/internal/storage"
)

// pickerTx stubs the two history queries pickers run.
type pickerTx struct {
	storage.Tx
	lastEnds   map[int64]int64
	nextStarts map[int64]int64
}

func (t *pickerTx) LastShiftEnds(ctx context.Context, teamID, roleID, before int64) (map[int64]int64, error) {
	return t.lastEnds, nil
}

func (t *pickerTx) NextShiftStarts(ctx context.Context, teamID, after int64) (map[int64]int64, error) {
	return t.nextStarts, nil
}

func roster(ids ...int64) []*storage.RosterMember {
	members := make([]*storage.RosterMember, 0, len(ids))
	names := []string{"alice", "bob", "carol", "dave"}
	for i, id := range ids {
		members = append(members, &storage.RosterMember{UserID: id, UserName: names[i], InRotation: true})
	}
	return members
}

func weekShifts(n int) []Shift {
	shifts := make([]Shift, n)
	for i := range shifts {
		start := int64(i) * storage.Week
		shifts[i] = Shift{Start: start, End: start + storage.Week}
	}
	return shifts
}

func TestFairUseRotatesEvenly(t *testing.T) {
	tx := &pickerTx{lastEnds: map[int64]int64{}, nextStarts: map[int64]int64{}}
	sched := &storage.Schedule{TeamID: 1, RoleID: 1}
	members := roster(1, 2, 3)
	picker := newFairUse()

	var got []int64
	for _, shift := range weekShifts(7) {
		id, found, err := picker.Pick(context.Background(), tx, sched, shift, members, nil)
		require.NoError(t, err)
		require.True(t, found)
		got = append(got, id)
	}
	assert.Equal(t, []int64{1, 2, 3, 1, 2, 3, 1}, got)
}

func TestFairUsePrefersLongestBreak(t *testing.T) {
	// user 1 was just on call; 2 and 3 never were, so the lower id wins
	tx := &pickerTx{
		lastEnds:   map[int64]int64{1: storage.Week - 3600},
		nextStarts: map[int64]int64{},
	}
	sched := &storage.Schedule{TeamID: 1, RoleID: 1}
	picker := newFairUse()

	id, found, err := picker.Pick(context.Background(), tx, sched, Shift{Start: storage.Week, End: 2 * storage.Week}, roster(1, 2, 3), nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), id)
}

func TestFairUsePenalizesUpcomingShift(t *testing.T) {
	// both users are fresh, but user 1 has a shift coming up sooner
	tx := &pickerTx{
		lastEnds: map[int64]int64{},
		nextStarts: map[int64]int64{
			1: 2 * storage.Week,
			2: 5 * storage.Week,
		},
	}
	sched := &storage.Schedule{TeamID: 1, RoleID: 1}
	picker := newFairUse()

	id, found, err := picker.Pick(context.Background(), tx, sched, Shift{Start: 0, End: storage.Week}, roster(1, 2), nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), id)
}

func TestFairUsePriorityBreaksTies(t *testing.T) {
	tx := &pickerTx{lastEnds: map[int64]int64{}, nextStarts: map[int64]int64{}}
	sched := &storage.Schedule{TeamID: 1, RoleID: 1}
	members := roster(1, 2)
	members[0].Priority = 5

	picker := newFairUse()
	id, found, err := picker.Pick(context.Background(), tx, sched, Shift{Start: 0, End: storage.Week}, members, nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), id)
}

func TestFairUseSkipsBusyAndOutOfRotation(t *testing.T) {
	tx := &pickerTx{lastEnds: map[int64]int64{}, nextStarts: map[int64]int64{}}
	sched := &storage.Schedule{TeamID: 1, RoleID: 1}
	members := roster(1, 2, 3)
	members[2].InRotation = false

	picker := newFairUse()
	id, found, err := picker.Pick(context.Background(), tx, sched, Shift{Start: 0, End: storage.Week}, members, map[int64]bool{1: true})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), id)

	_, found, err = picker.Pick(context.Background(), tx, sched, Shift{Start: 0, End: storage.Week}, members, map[int64]bool{1: true, 2: true})
	require.NoError(t, err)
	assert.False(t, found)
}
