package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
	"github.com/oncall-sre/oncall/pkg/ical"
)

type IcalStore interface {
	EventsEndingAfter(ctx context.Context, principalType, principal string, cutoff int64, roles []string, includeSubscribed bool, excludedTeams []string) ([]*storage.Event, error)
	UserContacts(ctx context.Context, userID int64) (map[string]string, error)
	CreateIcalKey(ctx context.Context, k *storage.IcalKey) error
	IcalKey(ctx context.Context, key string) (*storage.IcalKey, error)
	IcalKeysByRequester(ctx context.Context, requester string) ([]*storage.IcalKey, error)
	DeleteIcalKey(ctx context.Context, requester, key string) error
}

// UserAuthorizer gates operations on a user's own resources.
type UserAuthorizer interface {
	CheckUserAuth(ctx context.Context, p *auth.Principal, target string) error
}

type IcalHandler struct {
	store  IcalStore
	auth   UserAuthorizer
	logger zerolog.Logger
}

func NewIcalHandler(store IcalStore, authorizer UserAuthorizer, logger zerolog.Logger) *IcalHandler {
	return &IcalHandler{
		store:  store,
		auth:   authorizer,
		logger: logger.With().Str("component", "ical_handler").Logger(),
	}
}

// RegisterRoutes mounts the authenticated feed and key-management routes.
// The public keyed feed is registered separately, outside the login wall.
func (h *IcalHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/teams/:team/ical", h.TeamFeed)
	r.GET("/users/:user/ical", h.UserFeed)
	r.GET("/users/:user/ical_key", h.ListKeys)
	r.POST("/users/:user/ical_key", h.CreateKey)
	r.DELETE("/users/:user/ical_key/:key", h.DeleteKey)
}

func (h *IcalHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/ical/:key", h.KeyedFeed)
}

func (h *IcalHandler) TeamFeed(c *gin.Context) {
	h.feed(c, "team", c.Param("team"), c.Query("contact") != "false")
}

func (h *IcalHandler) UserFeed(c *gin.Context) {
	h.feed(c, "user", c.Param("user"), c.Query("contact") != "false")
}

// KeyedFeed serves the anonymous feed behind an ical key. Contact details
// are never included on this path.
func (h *IcalHandler) KeyedFeed(c *gin.Context) {
	key, err := h.store.IcalKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.feed(c, key.Type, key.Name, false)
}

func (h *IcalHandler) feed(c *gin.Context, principalType, name string, contact bool) {
	cutoff := time.Now().Unix()
	if raw := c.Query("start"); raw != "" {
		var err error
		cutoff, err = parseEpoch(raw)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	roles := c.QueryArray("roles")
	excluded := c.QueryArray("excludedTeams")
	includeSubscribed := c.Query("include_subscribed") == "true"

	evts, err := h.store.EventsEndingAfter(c.Request.Context(), principalType, name, cutoff, roles, includeSubscribed, excluded)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	shifts := make([]*ical.Shift, 0, len(evts))
	contactCache := map[int64]map[string]string{}
	for _, ev := range evts {
		shift := &ical.Shift{
			ID:       ev.ID,
			Team:     ev.Team,
			Role:     ev.Role,
			User:     ev.User,
			FullName: ev.FullName,
			Start:    ev.Start,
			End:      ev.End,
		}
		if contact {
			contacts, ok := contactCache[ev.UserID]
			if !ok {
				contacts, err = h.store.UserContacts(c.Request.Context(), ev.UserID)
				if err != nil {
					respondError(c, h.logger, err)
					return
				}
				contactCache[ev.UserID] = contacts
			}
			shift.Contacts = contacts
		}
		shifts = append(shifts, shift)
	}

	body, err := ical.Render(name, shifts)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Data(http.StatusOK, "text/calendar", body)
}

type icalKeyRequest struct {
	Name string `json:"name" binding:"required"`
	Type string `json:"type" binding:"required,oneof=user team"`
}

func (h *IcalHandler) CreateKey(c *gin.Context) {
	user := c.Param("user")
	if err := h.auth.CheckUserAuth(c.Request.Context(), principal(c), user); err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req icalKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	key := &storage.IcalKey{
		Key:         uuid.NewString(),
		Requester:   user,
		Name:        req.Name,
		Type:        req.Type,
		TimeCreated: time.Now().Unix(),
	}
	if err := h.store.CreateIcalKey(c.Request.Context(), key); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key.Key})
}

func (h *IcalHandler) ListKeys(c *gin.Context) {
	user := c.Param("user")
	if err := h.auth.CheckUserAuth(c.Request.Context(), principal(c), user); err != nil {
		respondError(c, h.logger, err)
		return
	}
	keys, err := h.store.IcalKeysByRequester(c.Request.Context(), user)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if keys == nil {
		keys = []*storage.IcalKey{}
	}
	c.JSON(http.StatusOK, keys)
}

func (h *IcalHandler) DeleteKey(c *gin.Context) {
	user := c.Param("user")
	if err := h.auth.CheckUserAuth(c.Request.Context(), principal(c), user); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.store.DeleteIcalKey(c.Request.Context(), user, c.Param("key")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
