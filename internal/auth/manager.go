package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/cache"
	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/storage"
)

// SessionCookie carries the session id; the matching CSRF token travels in
// the X-CSRF-TOKEN header.
const SessionCookie = "oncall-auth"

// Store is the slice of persistence the auth layer needs.
type Store interface {
	ApplicationKey(ctx context.Context, name string) (string, error)
	Session(ctx context.Context, id int64) (*storage.Session, error)
	UserByName(ctx context.Context, name string) (*storage.User, error)
	IsTeamAdmin(ctx context.Context, team, user string) (bool, error)
	IsTeamMemberByName(ctx context.Context, team, user string) (bool, error)
	IsTeamMemberByTeamID(ctx context.Context, teamID int64, user string) (bool, error)
	SharesAdminedTeam(ctx context.Context, challenger, target string) (bool, error)
}

// appKeyTTL bounds how long a revoked application key keeps verifying.
const appKeyTTL = time.Minute

type Manager struct {
	store  Store
	cfg    config.AuthConfig
	keys   *cache.Cache[string, string]
	logger zerolog.Logger
}

func NewManager(store Store, cfg config.AuthConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		cfg:    cfg,
		keys:   cache.New[string, string](appKeyTTL),
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Middleware resolves the request principal, if any, and stores it in the
// request context. It never rejects; LoginRequired does that.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := m.resolve(c)
		if p != nil {
			c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		}
		c.Next()
	}
}

// LoginRequired rejects requests that carry no principal, unless auth is
// globally disabled.
func (m *Manager) LoginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.cfg.RequireAuth {
			c.Next()
			return
		}
		if _, ok := PrincipalFrom(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"title": "Unauthorized", "description": "Authentication required"})
			return
		}
		c.Next()
	}
}

func (m *Manager) resolve(c *gin.Context) *Principal {
	if m.cfg.Debug {
		return &Principal{UserName: "test_user", FullName: "Test User"}
	}

	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "hmac ") {
		if p := m.resolveApp(c, strings.TrimPrefix(header, "hmac ")); p != nil {
			return p
		}
		return nil
	}

	return m.resolveSession(c)
}

func (m *Manager) resolveApp(c *gin.Context, credential string) *Principal {
	app, digest, ok := strings.Cut(credential, ":")
	if !ok {
		return nil
	}
	key, ok := m.keys.Get(app)
	if !ok {
		var err error
		key, err = m.store.ApplicationKey(c.Request.Context(), app)
		if err != nil {
			m.logger.Debug().Str("app", app).Msg("unknown application")
			return nil
		}
		m.keys.Set(app, key)
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	path := c.Request.URL.EscapedPath()
	if c.Request.URL.RawQuery != "" {
		path += "?" + c.Request.URL.RawQuery
	}
	if !VerifyHMAC(key, digest, c.Request.Method, path, string(body), timeNow()) {
		m.logger.Info().Str("app", app).Msg("hmac verification failed")
		return nil
	}
	return &Principal{AppName: app}
}

func (m *Manager) resolveSession(c *gin.Context) *Principal {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	sessionID, err := strconv.ParseInt(cookie, 10, 64)
	if err != nil {
		return nil
	}
	sess, err := m.store.Session(c.Request.Context(), sessionID)
	if err != nil {
		return nil
	}
	csrf := c.GetHeader("X-CSRF-TOKEN")
	if subtle.ConstantTimeCompare([]byte(csrf), []byte(sess.CSRFToken)) != 1 {
		m.logger.Info().Int64("session", sessionID).Msg("csrf token mismatch")
		return nil
	}
	user, err := m.store.UserByName(c.Request.Context(), sess.UserName)
	if err != nil {
		return nil
	}
	return &Principal{UserName: user.Name, FullName: user.FullName, God: user.God}
}
