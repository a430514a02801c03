package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncall-sre/oncall/internal/oncallerr"
)

func TestCompileEventFilter(t *testing.T) {
	tests := []struct {
		name   string
		params map[string][]string
		team   []string
		other  []string
		args   []any
	}{
		{
			name:   "bare field defaults to eq",
			params: map[string][]string{"team": {"sre"}},
			team:   []string{"team.name = $1"},
			args:   []any{"sre"},
		},
		{
			name:   "numeric comparison",
			params: map[string][]string{"start__lt": {"1700000000"}},
			other:  []string{"event.start < $1"},
			args:   []any{int64(1700000000)},
		},
		{
			name: "clauses sort by key for stable SQL",
			params: map[string][]string{
				"team":      {"sre"},
				"end__ge":   {"100"},
				"user__neq": nil,
			},
			team:  []string{"team.name = $2"},
			other: []string{"event.\"end\" >= $1"},
			args:  []any{int64(100), "sre"},
		},
		{
			name:   "string pattern ops",
			params: map[string][]string{"user__startswith": {"j"}},
			other:  []string{"\"user\".name LIKE $1 || '%'"},
			args:   []any{"j"},
		},
		{
			name:   "team_id is a team constraint",
			params: map[string][]string{"team_id": {"7"}},
			team:   []string{"event.team_id = $1"},
			args:   []any{int64(7)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileEventFilter(tt.params, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.team, f.TeamClauses)
			assert.Equal(t, tt.other, f.OtherClauses)
			assert.Equal(t, tt.args, f.Args)
		})
	}
}

func TestCompileEventFilterRejects(t *testing.T) {
	tests := []struct {
		name   string
		params map[string][]string
	}{
		{"unknown field", map[string][]string{"password": {"x"}}},
		{"unknown op", map[string][]string{"team__regex": {"x"}}},
		{"pattern op on numeric field", map[string][]string{"start__contains": {"17"}}},
		{"non-numeric value for numeric field", map[string][]string{"id": {"abc"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileEventFilter(tt.params, 1)
			require.Error(t, err)
			assert.True(t, oncallerr.IsKind(err, oncallerr.BadRequest))
		})
	}
}

func TestCompileEventFilterPlaceholderOffset(t *testing.T) {
	f, err := CompileEventFilter(map[string][]string{"team": {"sre"}}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"team.name = $3"}, f.TeamClauses)
}

func TestSubscriptionClause(t *testing.T) {
	clause, args := SubscriptionClause(nil, 1)
	assert.Empty(t, clause)
	assert.Nil(t, args)

	clause, args = SubscriptionClause([]Subscription{
		{TeamID: 7, RoleID: 1},
		{TeamID: 9, RoleID: 2},
	}, 2)
	assert.Equal(t, "((event.team_id = $2 AND event.role_id = $3) OR (event.team_id = $4 AND event.role_id = $5))", clause)
	assert.Equal(t, []any{int64(7), int64(1), int64(9), int64(2)}, args)
}

func TestEventFilterWhere(t *testing.T) {
	var nilFilter *EventFilter
	where, args := nilFilter.Where(nil)
	assert.Equal(t, "true", where)
	assert.Empty(t, args)

	f, err := CompileEventFilter(map[string][]string{
		"team":      {"sre"},
		"start__ge": {"100"},
	}, 1)
	require.NoError(t, err)

	where, args = f.Where(nil)
	assert.Equal(t, "team.name = $2 AND event.start >= $1", where)
	assert.Equal(t, []any{int64(100), "sre"}, args)
}

// Subscribed teams' events are admitted through the team constraint only;
// a time or user clause still applies to them.
func TestEventFilterWhereSubscriptions(t *testing.T) {
	f, err := CompileEventFilter(map[string][]string{
		"team":      {"sre"},
		"start__ge": {"100"},
	}, 1)
	require.NoError(t, err)

	where, args := f.Where([]Subscription{{TeamID: 7, RoleID: 1}})
	assert.Equal(t,
		"(team.name = $2 OR ((event.team_id = $3 AND event.role_id = $4))) AND event.start >= $1",
		where)
	assert.Equal(t, []any{int64(100), "sre", int64(7), int64(1)}, args)
}

// Without a team constraint there is nothing for a subscription to widen;
// the pairs are ignored and no stray placeholders are bound.
func TestEventFilterWhereSubscriptionsNeedTeam(t *testing.T) {
	f, err := CompileEventFilter(map[string][]string{"user": {"jdoe"}}, 1)
	require.NoError(t, err)

	where, args := f.Where([]Subscription{{TeamID: 7, RoleID: 1}})
	assert.Equal(t, "\"user\".name = $1", where)
	assert.Equal(t, []any{"jdoe"}, args)
}
