package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

type ScheduleStore interface {
	ListSchedules(ctx context.Context, team, roster string) ([]*storage.Schedule, error)
	ScheduleByID(ctx context.Context, id int64) (*storage.Schedule, error)
	CreateSchedule(ctx context.Context, s *storage.Schedule) (int64, error)
	UpdateSchedule(ctx context.Context, id int64, s *storage.Schedule) error
	DeleteSchedule(ctx context.Context, id int64) error
}

// ScheduleEngine is the populate/preview side, implemented by
// scheduler.Engine.
type ScheduleEngine interface {
	Populate(ctx context.Context, scheduleID, start int64) error
	Preview(ctx context.Context, scheduleID, start int64) ([]*storage.Event, error)
}

// TeamAuthorizer gates admin-only schedule operations.
type TeamAuthorizer interface {
	CheckTeamAuth(ctx context.Context, p *auth.Principal, team string) error
}

type SchedulesHandler struct {
	store  ScheduleStore
	engine ScheduleEngine
	auth   TeamAuthorizer
	logger zerolog.Logger
}

func NewSchedulesHandler(store ScheduleStore, engine ScheduleEngine, authorizer TeamAuthorizer, logger zerolog.Logger) *SchedulesHandler {
	return &SchedulesHandler{
		store:  store,
		engine: engine,
		auth:   authorizer,
		logger: logger.With().Str("component", "schedules_handler").Logger(),
	}
}

func (h *SchedulesHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/teams/:team/schedules", h.ListForTeam)
	r.GET("/teams/:team/rosters/:roster/schedules", h.ListForRoster)
	r.POST("/teams/:team/rosters/:roster/schedules", h.Create)

	schedules := r.Group("/schedules")
	{
		schedules.GET("/:id", h.Get)
		schedules.PUT("/:id", h.Update)
		schedules.DELETE("/:id", h.Delete)
		schedules.POST("/:id/populate", h.Populate)
		schedules.GET("/:id/preview", h.Preview)
	}
}

func (h *SchedulesHandler) ListForTeam(c *gin.Context) {
	h.list(c, c.Param("team"), "")
}

func (h *SchedulesHandler) ListForRoster(c *gin.Context) {
	h.list(c, c.Param("team"), c.Param("roster"))
}

func (h *SchedulesHandler) list(c *gin.Context, team, roster string) {
	schedules, err := h.store.ListSchedules(c.Request.Context(), team, roster)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if schedules == nil {
		schedules = []*storage.Schedule{}
	}
	c.JSON(http.StatusOK, schedules)
}

func (h *SchedulesHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	sched, err := h.store.ScheduleByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

type scheduleRequest struct {
	Role                  string                  `json:"role" binding:"required"`
	AutoPopulateThreshold int                     `json:"auto_populate_threshold"`
	AdvancedMode          bool                    `json:"advanced_mode"`
	Events                []storage.ScheduleEvent `json:"events" binding:"required"`
	Scheduler             storage.SchedulerInfo   `json:"scheduler"`
}

func (r *scheduleRequest) validate() error {
	if !r.AdvancedMode && !storage.ValidSimpleSchedule(r.Events) {
		return oncallerr.New(oncallerr.BadRequest, "Invalid schedule events for simple mode")
	}
	for _, ev := range r.Events {
		if ev.Duration <= 0 {
			return oncallerr.New(oncallerr.BadRequest, "Schedule events must have positive duration")
		}
	}
	return nil
}

func (h *SchedulesHandler) Create(c *gin.Context) {
	team := c.Param("team")
	if err := h.auth.CheckTeamAuth(c.Request.Context(), principal(c), team); err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if req.Scheduler.Name == "" {
		req.Scheduler.Name = "default"
	}
	sched := &storage.Schedule{
		Team:                  team,
		Roster:                c.Param("roster"),
		Role:                  req.Role,
		AutoPopulateThreshold: req.AutoPopulateThreshold,
		AdvancedMode:          req.AdvancedMode,
		Events:                req.Events,
		Scheduler:             req.Scheduler,
	}
	id, err := h.store.CreateSchedule(c.Request.Context(), sched)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *SchedulesHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	existing, err := h.store.ScheduleByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.auth.CheckTeamAuth(c.Request.Context(), principal(c), existing.Team); err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if req.Scheduler.Name == "" {
		req.Scheduler.Name = existing.Scheduler.Name
	}
	upd := &storage.Schedule{
		Team:                  existing.Team,
		Roster:                existing.Roster,
		Role:                  req.Role,
		AutoPopulateThreshold: req.AutoPopulateThreshold,
		AdvancedMode:          req.AdvancedMode,
		Events:                req.Events,
		Scheduler:             req.Scheduler,
	}
	if err := h.store.UpdateSchedule(c.Request.Context(), id, upd); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SchedulesHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	existing, err := h.store.ScheduleByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.auth.CheckTeamAuth(c.Request.Context(), principal(c), existing.Team); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.store.DeleteSchedule(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type populateRequest struct {
	Start int64 `json:"start" binding:"required"`
}

func (h *SchedulesHandler) Populate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	sched, err := h.store.ScheduleByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.auth.CheckTeamAuth(c.Request.Context(), principal(c), sched.Team); err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req populateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, oncallerr.New(oncallerr.BadRequest, "invalid request body: %v", err))
		return
	}
	if err := h.engine.Populate(c.Request.Context(), id, req.Start); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *SchedulesHandler) Preview(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var start int64
	if raw := c.Query("start"); raw != "" {
		start, err = parseEpoch(raw)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	preview, err := h.engine.Preview(c.Request.Context(), id, start)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if preview == nil {
		preview = []*storage.Event{}
	}
	c.JSON(http.StatusOK, preview)
}
