package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncall-sre/oncall/internal/storage"
)

type fakeEventStore struct {
	events []*storage.Event
	subs   []storage.Subscription

	subsTeam   string
	listFilter *storage.EventFilter
	listSubs   []storage.Subscription
}

func (f *fakeEventStore) ListEvents(ctx context.Context, filter *storage.EventFilter, subs []storage.Subscription) ([]*storage.Event, error) {
	f.listFilter = filter
	f.listSubs = subs
	return f.events, nil
}

func (f *fakeEventStore) EventByID(ctx context.Context, id int64) (*storage.Event, error) {
	return &storage.Event{ID: id}, nil
}

func (f *fakeEventStore) SubscriptionsOf(ctx context.Context, team string) ([]storage.Subscription, error) {
	f.subsTeam = team
	return f.subs, nil
}

func eventsRouter(store *fakeEventStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewEventsHandler(store, nil, zerolog.Nop()).RegisterRoutes(r.Group("/api/v0"))
	return r
}

// A team-filtered list pulls in subscribed teams' events without being
// asked; include_subscribed is on unless explicitly turned off.
func TestListIncludesSubscribedByDefault(t *testing.T) {
	store := &fakeEventStore{subs: []storage.Subscription{{TeamID: 7, RoleID: 1}}}
	r := eventsRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v0/events?team=sre", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sre", store.subsTeam)
	assert.Equal(t, store.subs, store.listSubs)
}

func TestListSubscribedOptOut(t *testing.T) {
	store := &fakeEventStore{subs: []storage.Subscription{{TeamID: 7, RoleID: 1}}}
	r := eventsRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v0/events?team=sre&include_subscribed=false", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.subsTeam)
	assert.Nil(t, store.listSubs)
}

// Without a team filter there is no subscriber to expand.
func TestListNoTeamFilterSkipsSubscriptions(t *testing.T) {
	store := &fakeEventStore{subs: []storage.Subscription{{TeamID: 7, RoleID: 1}}}
	r := eventsRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v0/events?user=jdoe", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.subsTeam)
	assert.Nil(t, store.listSubs)
}

func TestListRejectsUnknownFilterField(t *testing.T) {
	store := &fakeEventStore{}
	r := eventsRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v0/events?password=x", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
