package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/notify"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

const testNow = int64(1700000000)

func fixedClock(t *testing.T) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return time.Unix(testNow, 0) }
	t.Cleanup(func() { timeNow = orig })
}

type userSet struct {
	eventID   int64
	userID    int64
	clearLink bool
}

type fakeTx struct {
	storage.Tx
	teams   map[string]*storage.Team
	users   map[string]*storage.User
	roles   map[string]*storage.Role
	members map[int64]bool
	events  map[int64]*storage.Event

	inserted []*storage.Event
	updates  []storage.EventUpdate
	deleted  []int64
	userSets []userSet
	linkSets map[string]int64
	audits   []*storage.AuditEntry
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		teams: map[string]*storage.Team{
			"sre": {ID: 1, Name: "sre", Active: true},
		},
		users: map[string]*storage.User{
			"alice": {ID: 1, Name: "alice", FullName: "Alice Adams", Active: true},
			"bob":   {ID: 2, Name: "bob", FullName: "Bob Brown", Active: true},
			"eve":   {ID: 3, Name: "eve", FullName: "Eve Evans", Active: true},
		},
		roles: map[string]*storage.Role{
			"primary": {ID: 1, Name: "primary"},
		},
		members:  map[int64]bool{1: true, 2: true},
		events:   map[int64]*storage.Event{},
		linkSets: map[string]int64{},
	}
}

func (f *fakeTx) TeamByName(ctx context.Context, name string) (*storage.Team, error) {
	t, ok := f.teams[name]
	if !ok {
		return nil, oncallerr.New(oncallerr.Integrity, "team %q not found", name)
	}
	return t, nil
}

func (f *fakeTx) UserByName(ctx context.Context, name string) (*storage.User, error) {
	u, ok := f.users[name]
	if !ok {
		return nil, oncallerr.New(oncallerr.Integrity, "user %q not found", name)
	}
	return u, nil
}

func (f *fakeTx) RoleByName(ctx context.Context, name string) (*storage.Role, error) {
	r, ok := f.roles[name]
	if !ok {
		return nil, oncallerr.New(oncallerr.Integrity, "role %q not found", name)
	}
	return r, nil
}

func (f *fakeTx) IsTeamMember(ctx context.Context, teamID, userID int64) (bool, error) {
	return f.members[userID], nil
}

func (f *fakeTx) EventByID(ctx context.Context, id int64) (*storage.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, oncallerr.New(oncallerr.NotFound, "event %d not found", id)
	}
	return ev, nil
}

func (f *fakeTx) EventsByIDs(ctx context.Context, ids []int64) ([]*storage.Event, error) {
	var out []*storage.Event
	for _, id := range ids {
		if ev, ok := f.events[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeTx) EventsByLink(ctx context.Context, linkID string) ([]*storage.Event, error) {
	var out []*storage.Event
	for _, ev := range f.events {
		if ev.LinkID != nil && *ev.LinkID == linkID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeTx) InsertEvent(ctx context.Context, e *storage.Event) (int64, error) {
	f.inserted = append(f.inserted, e)
	return int64(100 + len(f.inserted)), nil
}

func (f *fakeTx) UpdateEvent(ctx context.Context, id int64, upd storage.EventUpdate, clearLink bool) error {
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeTx) DeleteEvent(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTx) SetEventUser(ctx context.Context, id, userID int64, clearLink bool) error {
	f.userSets = append(f.userSets, userSet{eventID: id, userID: userID, clearLink: clearLink})
	return nil
}

func (f *fakeTx) SetLinkUser(ctx context.Context, linkID string, userID int64) error {
	f.linkSets[linkID] = userID
	return nil
}

func (f *fakeTx) InsertAudit(ctx context.Context, a *storage.AuditEntry) error {
	f.audits = append(f.audits, a)
	return nil
}

func (f *fakeTx) SettingsForTeam(ctx context.Context, teamID int64, typeName string, roles []string) ([]*storage.NotificationSetting, error) {
	return nil, nil
}

type fakeStore struct {
	storage.Store
	tx *fakeTx
}

func (s *fakeStore) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return fn(s.tx)
}

type fakeAuthorizer struct {
	calendarErr error
	teamErr     error
}

func (a *fakeAuthorizer) CheckCalendarAuth(ctx context.Context, p *auth.Principal, team string) error {
	return a.calendarErr
}

func (a *fakeAuthorizer) CheckTeamAuth(ctx context.Context, p *auth.Principal, team string) error {
	return a.teamErr
}

func newTestEngine(tx *fakeTx, authorizer *fakeAuthorizer) *Engine {
	return NewEngine(&fakeStore{tx: tx}, notify.NewSink(zerolog.Nop()), authorizer, 86400, zerolog.Nop())
}

func alicePrincipal() *auth.Principal {
	return &auth.Principal{UserName: "alice", FullName: "Alice Adams"}
}

func TestCreateEvent(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	engine := newTestEngine(tx, &fakeAuthorizer{})

	id, err := engine.Create(context.Background(), alicePrincipal(), CreateInput{
		Start: testNow + 3600,
		End:   testNow + 7200,
		User:  "alice",
		Team:  "sre",
		Role:  "primary",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)

	require.Len(t, tx.inserted, 1)
	assert.Equal(t, int64(1), tx.inserted[0].UserID)
	require.Len(t, tx.audits, 1)
	assert.Equal(t, notify.ActionEventCreated, tx.audits[0].Action)
	assert.Equal(t, "alice", tx.audits[0].Owner)
}

func TestCreateEventRejects(t *testing.T) {
	fixedClock(t)

	tests := []struct {
		name    string
		in      CreateInput
		message string
	}{
		{
			name:    "start after end",
			in:      CreateInput{Start: testNow + 7200, End: testNow + 3600, User: "alice", Team: "sre", Role: "primary"},
			message: "Event must start before it ends",
		},
		{
			name:    "start in the past",
			in:      CreateInput{Start: testNow - 90000, End: testNow + 3600, User: "alice", Team: "sre", Role: "primary"},
			message: "Creating events in the past not allowed",
		},
		{
			name:    "user not on the team",
			in:      CreateInput{Start: testNow + 3600, End: testNow + 7200, User: "eve", Team: "sre", Role: "primary"},
			message: "must be part of team",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newFakeTx()
			engine := newTestEngine(tx, &fakeAuthorizer{})
			_, err := engine.Create(context.Background(), alicePrincipal(), tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.Empty(t, tx.inserted)
		})
	}
}

func TestCreateEventWithinGracePeriod(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	engine := newTestEngine(tx, &fakeAuthorizer{})

	// up to a day in the past is still allowed
	_, err := engine.Create(context.Background(), alicePrincipal(), CreateInput{
		Start: testNow - 3600,
		End:   testNow + 3600,
		User:  "alice",
		Team:  "sre",
		Role:  "primary",
	})
	assert.NoError(t, err)
}

func TestEditChangesUser(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	tx.events[5] = &storage.Event{
		ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", FullName: "Alice Adams",
		Start: testNow + 3600, End: testNow + 7200,
	}
	engine := newTestEngine(tx, &fakeAuthorizer{})

	newUser := "bob"
	err := engine.Edit(context.Background(), alicePrincipal(), 5, EditInput{User: &newUser})
	require.NoError(t, err)

	require.Len(t, tx.updates, 1)
	require.NotNil(t, tx.updates[0].UserID)
	assert.Equal(t, int64(2), *tx.updates[0].UserID)
	require.Len(t, tx.audits, 1)
	assert.Equal(t, notify.ActionEventEdited, tx.audits[0].Action)
}

func TestEditEmptyInput(t *testing.T) {
	fixedClock(t)
	engine := newTestEngine(newFakeTx(), &fakeAuthorizer{})
	err := engine.Edit(context.Background(), alicePrincipal(), 5, EditInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No event fields to update")
}

func TestEditPastEvent(t *testing.T) {
	fixedClock(t)
	pastEvent := func() *storage.Event {
		return &storage.Event{
			ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
			UserID: 1, User: "alice", FullName: "Alice Adams",
			Start: testNow - 90000, End: testNow - 3600,
		}
	}
	notAdmin := oncallerr.New(oncallerr.Unauthorized, "not a team admin")

	t.Run("non-admin cannot reassign", func(t *testing.T) {
		tx := newFakeTx()
		tx.events[5] = pastEvent()
		engine := newTestEngine(tx, &fakeAuthorizer{teamErr: notAdmin})

		newUser := "bob"
		err := engine.Edit(context.Background(), alicePrincipal(), 5, EditInput{User: &newUser})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Editing events in the past not allowed")
	})

	t.Run("non-admin may extend the end", func(t *testing.T) {
		tx := newFakeTx()
		tx.events[5] = pastEvent()
		engine := newTestEngine(tx, &fakeAuthorizer{teamErr: notAdmin})

		newEnd := testNow + 3600
		err := engine.Edit(context.Background(), alicePrincipal(), 5, EditInput{End: &newEnd})
		require.NoError(t, err)
		require.Len(t, tx.updates, 1)
	})

	t.Run("admin may edit freely", func(t *testing.T) {
		tx := newFakeTx()
		tx.events[5] = pastEvent()
		engine := newTestEngine(tx, &fakeAuthorizer{})

		newUser := "bob"
		err := engine.Edit(context.Background(), alicePrincipal(), 5, EditInput{User: &newUser})
		require.NoError(t, err)
	})
}

func TestDeleteEvent(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	tx.events[5] = &storage.Event{
		ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", Start: testNow + 3600, End: testNow + 7200,
	}
	engine := newTestEngine(tx, &fakeAuthorizer{})

	require.NoError(t, engine.Delete(context.Background(), alicePrincipal(), 5))
	assert.Equal(t, []int64{5}, tx.deleted)
	require.Len(t, tx.audits, 1)
	assert.Equal(t, notify.ActionEventDeleted, tx.audits[0].Action)
}

func TestDeletePastEventRejected(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	tx.events[5] = &storage.Event{
		ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", Start: testNow - 90000, End: testNow - 3600,
	}
	engine := newTestEngine(tx, &fakeAuthorizer{})

	err := engine.Delete(context.Background(), alicePrincipal(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Deleting events in the past not allowed")
	assert.Empty(t, tx.deleted)
}

func TestSwapSingleEvents(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	link := "aaaa"
	tx.events[5] = &storage.Event{
		ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", FullName: "Alice Adams",
		Start: testNow + 3600, End: testNow + 7200, LinkID: &link,
	}
	tx.events[6] = &storage.Event{
		ID: 6, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 2, User: "bob", FullName: "Bob Brown",
		Start: testNow + 7200, End: testNow + 10800,
	}
	engine := newTestEngine(tx, &fakeAuthorizer{})

	err := engine.Swap(context.Background(), alicePrincipal(), SwapSide{EventID: 5}, SwapSide{EventID: 6})
	require.NoError(t, err)

	// each side takes the other's user and loses its linkage
	require.Len(t, tx.userSets, 2)
	assert.Equal(t, userSet{eventID: 5, userID: 2, clearLink: true}, tx.userSets[0])
	assert.Equal(t, userSet{eventID: 6, userID: 1, clearLink: true}, tx.userSets[1])
	require.Len(t, tx.audits, 1)
	assert.Equal(t, notify.ActionEventSwapped, tx.audits[0].Action)
}

func TestSwapLinkedGroup(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	link := "bbbb"
	tx.events[5] = &storage.Event{
		ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", Start: testNow + 3600, End: testNow + 7200, LinkID: &link,
	}
	tx.events[6] = &storage.Event{
		ID: 6, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", Start: testNow + 7200, End: testNow + 10800, LinkID: &link,
	}
	tx.events[7] = &storage.Event{
		ID: 7, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 2, User: "bob", Start: testNow + 10800, End: testNow + 14400,
	}
	engine := newTestEngine(tx, &fakeAuthorizer{})

	err := engine.Swap(context.Background(), alicePrincipal(),
		SwapSide{LinkID: link, Linked: true}, SwapSide{EventID: 7})
	require.NoError(t, err)

	// the linked side keeps its link id
	assert.Equal(t, int64(2), tx.linkSets[link])
	require.Len(t, tx.userSets, 1)
	assert.Equal(t, userSet{eventID: 7, userID: 1, clearLink: true}, tx.userSets[0])
}

func TestSwapRejectsPastAndCrossTeam(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	tx.teams["net"] = &storage.Team{ID: 2, Name: "net", Active: true}
	tx.events[5] = &storage.Event{
		ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", Start: testNow - 90000, End: testNow - 3600,
	}
	tx.events[6] = &storage.Event{
		ID: 6, TeamID: 2, Team: "net", RoleID: 1, Role: "primary",
		UserID: 2, User: "bob", Start: testNow + 7200, End: testNow + 10800,
	}
	engine := newTestEngine(tx, &fakeAuthorizer{})

	err := engine.Swap(context.Background(), alicePrincipal(), SwapSide{EventID: 5}, SwapSide{EventID: 6})
	require.Error(t, err)
	assert.True(t, oncallerr.IsKind(err, oncallerr.BadRequest))
	assert.Empty(t, tx.userSets)
}

func TestOverrideSubstitutesUser(t *testing.T) {
	fixedClock(t)
	tx := newFakeTx()
	tx.events[5] = &storage.Event{
		ID: 5, TeamID: 1, Team: "sre", RoleID: 1, Role: "primary",
		UserID: 1, User: "alice", FullName: "Alice Adams",
		Start: testNow + 3600, End: testNow + 90000,
	}
	engine := newTestEngine(tx, &fakeAuthorizer{})

	result, err := engine.Override(context.Background(), alicePrincipal(), OverrideInput{
		Start:    testNow + 3600,
		End:      testNow + 90000,
		EventIDs: []int64{5},
		User:     "bob",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{5}, tx.deleted)
	require.Len(t, result, 1)
	assert.Equal(t, "bob", result[0].User)
	assert.Equal(t, testNow+3600, result[0].Start)
	require.Len(t, tx.audits, 1)
	assert.Equal(t, notify.ActionEventSubstituted, tx.audits[0].Action)
}
