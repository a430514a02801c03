package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

type NotificationStore interface {
	SearchQueue(ctx context.Context, user string, from, until int64) ([]*storage.QueuedMessage, error)
	SettingsForUser(ctx context.Context, user string) ([]*storage.NotificationSetting, error)
	CreateSetting(ctx context.Context, s *storage.NotificationSetting) (int64, error)
	UpdateSetting(ctx context.Context, id int64, s *storage.NotificationSetting) error
	DeleteSetting(ctx context.Context, user string, id int64) error
}

type NotificationsHandler struct {
	store  NotificationStore
	auth   UserAuthorizer
	logger zerolog.Logger
}

func NewNotificationsHandler(store NotificationStore, authorizer UserAuthorizer, logger zerolog.Logger) *NotificationsHandler {
	return &NotificationsHandler{
		store:  store,
		auth:   authorizer,
		logger: logger.With().Str("component", "notifications_handler").Logger(),
	}
}

func (h *NotificationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.Search)
	r.GET("/users/:user/notifications", h.ListSettings)
	r.POST("/users/:user/notifications", h.CreateSetting)
	r.PUT("/users/:user/notifications/:id", h.UpdateSetting)
	r.DELETE("/users/:user/notifications/:id", h.DeleteSetting)
}

// Search lists queue rows in a time window, optionally for one user.
// The window defaults to the past day through the next day.
func (h *NotificationsHandler) Search(c *gin.Context) {
	now := time.Now().Unix()
	from, until := now-86400, now+86400
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = parseEpoch(raw); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	if raw := c.Query("until"); raw != "" {
		if until, err = parseEpoch(raw); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	msgs, err := h.store.SearchQueue(c.Request.Context(), c.Query("user"), from, until)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []*storage.QueuedMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *NotificationsHandler) ListSettings(c *gin.Context) {
	settings, err := h.store.SettingsForUser(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if settings == nil {
		settings = []*storage.NotificationSetting{}
	}
	c.JSON(http.StatusOK, settings)
}

type settingRequest struct {
	Team           string   `json:"team" binding:"required"`
	Mode           string   `json:"mode" binding:"required"`
	Type           string   `json:"type" binding:"required"`
	Roles          []string `json:"roles" binding:"required,min=1"`
	TimeBefore     *int64   `json:"time_before,omitempty"`
	OnlyIfInvolved *bool    `json:"only_if_involved,omitempty"`
}

func (h *NotificationsHandler) CreateSetting(c *gin.Context) {
	user := c.Param("user")
	if err := h.auth.CheckUserAuth(c.Request.Context(), principal(c), user); err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	id, err := h.store.CreateSetting(c.Request.Context(), &storage.NotificationSetting{
		User:           user,
		Team:           req.Team,
		Mode:           req.Mode,
		Type:           req.Type,
		Roles:          req.Roles,
		TimeBefore:     req.TimeBefore,
		OnlyIfInvolved: req.OnlyIfInvolved,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *NotificationsHandler) UpdateSetting(c *gin.Context) {
	user := c.Param("user")
	if err := h.auth.CheckUserAuth(c.Request.Context(), principal(c), user); err != nil {
		respondError(c, h.logger, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	err = h.store.UpdateSetting(c.Request.Context(), id, &storage.NotificationSetting{
		User:           user,
		Team:           req.Team,
		Mode:           req.Mode,
		Type:           req.Type,
		Roles:          req.Roles,
		TimeBefore:     req.TimeBefore,
		OnlyIfInvolved: req.OnlyIfInvolved,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationsHandler) DeleteSetting(c *gin.Context) {
	user := c.Param("user")
	if err := h.auth.CheckUserAuth(c.Request.Context(), principal(c), user); err != nil {
		respondError(c, h.logger, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.store.DeleteSetting(c.Request.Context(), user, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
