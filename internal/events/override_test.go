package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

func shiftRun(bounds ...int64) []*storage.Event {
	events := make([]*storage.Event, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		events = append(events, &storage.Event{
			ID:     int64(i + 1),
			TeamID: 1,
			RoleID: 1,
			UserID: 1,
			Start:  bounds[i],
			End:    bounds[i+1],
		})
	}
	return events
}

func TestPlanOverrideFullCover(t *testing.T) {
	plan, err := planOverride(shiftRun(100, 200, 300), 100, 300)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, plan.deletes)
	assert.Empty(t, plan.truncates)
	assert.Empty(t, plan.splits)
	assert.Equal(t, int64(100), plan.start)
	assert.Equal(t, int64(300), plan.end)
}

func TestPlanOverrideInteriorSplits(t *testing.T) {
	plan, err := planOverride(shiftRun(100, 300), 150, 250)
	require.NoError(t, err)
	assert.Empty(t, plan.deletes)
	require.Len(t, plan.truncates, 1)
	assert.Equal(t, boundsChange{id: 1, start: 100, end: 150}, plan.truncates[0])
	require.Len(t, plan.splits, 1)
	tail := plan.splits[0]
	assert.Zero(t, tail.ID)
	assert.Equal(t, int64(250), tail.Start)
	assert.Equal(t, int64(300), tail.End)
	assert.Nil(t, tail.LinkID)
}

func TestPlanOverridePartialEdges(t *testing.T) {
	// window covers the tail of the first event and the head of the last
	plan, err := planOverride(shiftRun(100, 200, 300, 400), 150, 350)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, plan.deletes)
	require.Len(t, plan.truncates, 2)
	assert.Equal(t, boundsChange{id: 1, start: 100, end: 150}, plan.truncates[0])
	assert.Equal(t, boundsChange{id: 3, start: 350, end: 400}, plan.truncates[1])
	assert.Empty(t, plan.splits)
}

func TestPlanOverrideClampsWindow(t *testing.T) {
	plan, err := planOverride(shiftRun(100, 200), 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), plan.start)
	assert.Equal(t, int64(200), plan.end)
	assert.Equal(t, []int64{1}, plan.deletes)
}

func TestPlanOverrideRejects(t *testing.T) {
	base := shiftRun(100, 200, 300)

	gapped := shiftRun(100, 200)
	gapped = append(gapped, &storage.Event{ID: 9, TeamID: 1, RoleID: 1, UserID: 1, Start: 250, End: 350})

	otherUser := shiftRun(100, 200, 300)
	otherUser[1].UserID = 2

	otherRole := shiftRun(100, 200, 300)
	otherRole[1].RoleID = 2

	otherTeam := shiftRun(100, 200, 300)
	otherTeam[1].TeamID = 2

	tests := []struct {
		name       string
		events     []*storage.Event
		start, end int64
		message    string
	}{
		{"empty run", nil, 100, 200, "Events to override not found"},
		{"gap in run", gapped, 100, 300, "Overridden events must be consecutive"},
		{"mixed users", otherUser, 100, 300, "Overridden events must all have the same user"},
		{"mixed roles", otherRole, 100, 300, "Overridden events must all have the same role"},
		{"mixed teams", otherTeam, 100, 300, "Overridden events must all belong to one team"},
		{"window misses run", base, 300, 400, "Override window does not overlap the given events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planOverride(tt.events, tt.start, tt.end)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestPlanOverrideErrorKinds(t *testing.T) {
	_, err := planOverride(nil, 0, 100)
	assert.True(t, oncallerr.IsKind(err, oncallerr.NotFound))

	_, err = planOverride(shiftRun(100, 200), 300, 400)
	assert.True(t, oncallerr.IsKind(err, oncallerr.BadRequest))
}
