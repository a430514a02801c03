package api

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

type SessionStore interface {
	UserByName(ctx context.Context, name string) (*storage.User, error)
	CreateSession(ctx context.Context, userName string) (*storage.Session, error)
	DeleteSession(ctx context.Context, id int64) error
}

// SessionHandler implements login and logout. Credential verification is
// delegated to the configured identity module; the bundled debug module
// accepts any password for a known active user. External identity
// providers authenticate out of band and applications use HMAC keys.
type SessionHandler struct {
	store  SessionStore
	cfg    config.AuthConfig
	logger zerolog.Logger
}

func NewSessionHandler(store SessionStore, cfg config.AuthConfig, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "session_handler").Logger(),
	}
}

func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
}

type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "username and password required"))
		return
	}
	if !h.cfg.Debug {
		respondError(c, h.logger, oncallerr.New(oncallerr.Unauthorized, "Invalid credentials"))
		return
	}
	user, err := h.store.UserByName(c.Request.Context(), req.Username)
	if err != nil || !user.Active {
		respondError(c, h.logger, oncallerr.New(oncallerr.Unauthorized, "Invalid credentials"))
		return
	}

	sess, err := h.store.CreateSession(c.Request.Context(), user.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.SetCookie(auth.SessionCookie, strconv.FormatInt(sess.ID, 10), 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"csrf_token": sess.CSRFToken,
		"name":       user.Name,
		"full_name":  user.FullName,
		"time_zone":  user.TimeZone,
		"photo_url":  user.PhotoURL,
	})
}

func (h *SessionHandler) Logout(c *gin.Context) {
	cookie, err := c.Cookie(auth.SessionCookie)
	if err == nil {
		if id, perr := strconv.ParseInt(cookie, 10, 64); perr == nil {
			if derr := h.store.DeleteSession(c.Request.Context(), id); derr != nil {
				h.logger.Error().Err(derr).Msg("session delete failed")
			}
		}
	}
	c.SetCookie(auth.SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusOK)
}

// Healthcheck serves the contents of the status file, or 503 when it is
// missing. Removing the file drains the instance from its load balancer.
func Healthcheck(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := os.ReadFile(path)
		if err != nil {
			c.String(http.StatusServiceUnavailable, "Not available")
			return
		}
		c.Data(http.StatusOK, "text/plain", body)
	}
}
