package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/storage"
)

type OncallStore interface {
	CurrentOncall(ctx context.Context, team, role string) ([]*storage.OncallShift, error)
	ServiceOncall(ctx context.Context, service, role string) ([]*storage.OncallShift, error)
}

type OncallHandler struct {
	store  OncallStore
	logger zerolog.Logger
}

func NewOncallHandler(store OncallStore, logger zerolog.Logger) *OncallHandler {
	return &OncallHandler{
		store:  store,
		logger: logger.With().Str("component", "oncall_handler").Logger(),
	}
}

func (h *OncallHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/teams/:team/oncall", h.TeamOncall)
	r.GET("/teams/:team/oncall/:role", h.TeamOncall)
	r.GET("/services/:service/oncall", h.ServiceOncall)
}

// TeamOncall returns who is on call right now for a team, including shifts
// from subscribed teams, with contact details.
func (h *OncallHandler) TeamOncall(c *gin.Context) {
	shifts, err := h.store.CurrentOncall(c.Request.Context(), c.Param("team"), c.Param("role"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []*storage.OncallShift{}
	}
	c.JSON(http.StatusOK, shifts)
}

func (h *OncallHandler) ServiceOncall(c *gin.Context) {
	shifts, err := h.store.ServiceOncall(c.Request.Context(), c.Param("service"), c.Query("role"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []*storage.OncallShift{}
	}
	c.JSON(http.StatusOK, shifts)
}
