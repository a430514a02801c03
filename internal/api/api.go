// Package api exposes the HTTP surface. Handlers are thin: they decode
// parameters, read the principal, call into the engines or the store, and
// translate error kinds to HTTP statuses in one place.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/oncallerr"
)

func statusForKind(kind oncallerr.Kind) int {
	switch kind {
	case oncallerr.BadRequest:
		return http.StatusBadRequest
	case oncallerr.Unauthorized:
		return http.StatusForbidden
	case oncallerr.NotFound:
		return http.StatusNotFound
	case oncallerr.Integrity:
		return http.StatusUnprocessableEntity
	case oncallerr.Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError is the single error-to-HTTP translation point. Internal
// errors are logged in full and answered with a generic message.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	var e *oncallerr.Error
	if errors.As(err, &e) && e.Kind != oncallerr.Internal {
		c.JSON(statusForKind(e.Kind), gin.H{"error": e.Message})
		return
	}
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func principal(c *gin.Context) *auth.Principal {
	p, _ := auth.PrincipalFrom(c.Request.Context())
	return p
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, oncallerr.New(oncallerr.BadRequest, "invalid %s: %q", name, c.Param(name))
	}
	return id, nil
}

func parseEpoch(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, oncallerr.New(oncallerr.BadRequest, "invalid timestamp: %q", raw)
	}
	return n, nil
}
