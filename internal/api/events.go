package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/events"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

// EventStore is the read side the events handler consumes.
type EventStore interface {
	ListEvents(ctx context.Context, filter *storage.EventFilter, subs []storage.Subscription) ([]*storage.Event, error)
	EventByID(ctx context.Context, id int64) (*storage.Event, error)
	SubscriptionsOf(ctx context.Context, team string) ([]storage.Subscription, error)
}

// EventEngine is the mutation side, implemented by events.Engine.
type EventEngine interface {
	Create(ctx context.Context, p *auth.Principal, in events.CreateInput) (int64, error)
	CreateLinked(ctx context.Context, p *auth.Principal, specs []events.CreateInput) (*events.LinkedCreateResult, error)
	Edit(ctx context.Context, p *auth.Principal, id int64, in events.EditInput) error
	EditLinked(ctx context.Context, p *auth.Principal, linkID string, in events.EditInput) error
	Delete(ctx context.Context, p *auth.Principal, id int64) error
	DeleteLinked(ctx context.Context, p *auth.Principal, linkID string) error
	Swap(ctx context.Context, p *auth.Principal, a, b events.SwapSide) error
	Override(ctx context.Context, p *auth.Principal, in events.OverrideInput) ([]*storage.Event, error)
}

type EventsHandler struct {
	store  EventStore
	engine EventEngine
	logger zerolog.Logger
}

func NewEventsHandler(store EventStore, engine EventEngine, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		store:  store,
		engine: engine,
		logger: logger.With().Str("component", "events_handler").Logger(),
	}
}

func (h *EventsHandler) RegisterRoutes(r *gin.RouterGroup) {
	ev := r.Group("/events")
	{
		ev.GET("", h.List)
		ev.POST("", h.Create)
		ev.GET("/:id", h.Get)
		ev.PUT("/:id", h.Update)
		ev.DELETE("/:id", h.Delete)
		ev.POST("/link", h.CreateLinked)
		ev.PUT("/link/:link_id", h.UpdateLinked)
		ev.DELETE("/link/:link_id", h.DeleteLinked)
		ev.POST("/swap", h.Swap)
		ev.POST("/override", h.Override)
	}
}

// List filters events with the field / field__op query grammar. When a
// team filter is present, events from teams it subscribes to are added
// unless include_subscribed=false.
func (h *EventsHandler) List(c *gin.Context) {
	params := map[string][]string{}
	for key, values := range c.Request.URL.Query() {
		if key == "include_subscribed" {
			continue
		}
		params[key] = values
	}
	filter, err := storage.CompileEventFilter(params, 1)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var subs []storage.Subscription
	if c.Query("include_subscribed") != "false" {
		team := c.Query("team")
		if team == "" {
			team = c.Query("team__eq")
		}
		if team != "" {
			subs, err = h.store.SubscriptionsOf(c.Request.Context(), team)
			if err != nil {
				respondError(c, h.logger, err)
				return
			}
		}
	}

	evts, err := h.store.ListEvents(c.Request.Context(), filter, subs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if evts == nil {
		evts = []*storage.Event{}
	}
	c.JSON(http.StatusOK, evts)
}

func (h *EventsHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	ev, err := h.store.EventByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *EventsHandler) Create(c *gin.Context) {
	var in events.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	id, err := h.engine.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *EventsHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var in events.EditInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	if err := h.engine.Edit(c.Request.Context(), principal(c), id, in); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EventsHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.engine.Delete(c.Request.Context(), principal(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EventsHandler) CreateLinked(c *gin.Context) {
	var specs []events.CreateInput
	if err := c.ShouldBindJSON(&specs); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	result, err := h.engine.CreateLinked(c.Request.Context(), principal(c), specs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *EventsHandler) UpdateLinked(c *gin.Context) {
	var in events.EditInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	if err := h.engine.EditLinked(c.Request.Context(), principal(c), c.Param("link_id"), in); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EventsHandler) DeleteLinked(c *gin.Context) {
	if err := h.engine.DeleteLinked(c.Request.Context(), principal(c), c.Param("link_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// swapSideRequest accepts {"id": 123, "linked": false} for single events
// and {"id": "<link_id>", "linked": true} for linked groups.
type swapSideRequest struct {
	ID     json.RawMessage `json:"id" binding:"required"`
	Linked bool            `json:"linked"`
}

type swapRequest struct {
	Events []swapSideRequest `json:"events" binding:"required,len=2"`
}

func (r *swapSideRequest) side() (events.SwapSide, error) {
	if r.Linked {
		var linkID string
		if err := json.Unmarshal(r.ID, &linkID); err != nil {
			return events.SwapSide{}, oncallerr.New(oncallerr.BadRequest, "linked swap side needs a link id string")
		}
		return events.SwapSide{LinkID: linkID, Linked: true}, nil
	}
	var id int64
	if err := json.Unmarshal(r.ID, &id); err != nil {
		return events.SwapSide{}, oncallerr.New(oncallerr.BadRequest, "swap side needs a numeric event id")
	}
	return events.SwapSide{EventID: id}, nil
}

func (h *EventsHandler) Swap(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	a, err := req.Events[0].side()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	b, err := req.Events[1].side()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.engine.Swap(c.Request.Context(), principal(c), a, b); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EventsHandler) Override(c *gin.Context) {
	var in events.OverrideInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	result, err := h.engine.Override(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
