// Package httpserver assembles the storage, auth, engines, and HTTP
// handlers into one runnable server.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/api"
	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/events"
	"github.com/oncall-sre/oncall/internal/notify"
	"github.com/oncall-sre/oncall/internal/scheduler"
	"github.com/oncall-sre/oncall/internal/storage/postgres"
)

type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

func NewServer(cfg *config.Config, logger zerolog.Logger) (*Server, func(), error) {
	store, err := postgres.New(cfg.DB.Conn.Str, logger)
	if err != nil {
		return nil, nil, err
	}

	manager := auth.NewManager(store, cfg.Auth, logger)
	sink := notify.NewSink(logger)
	eventEngine := events.NewEngine(store, sink, manager, cfg.GracePeriod, logger)
	schedEngine := scheduler.New(store, cfg.GracePeriod, logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), manager.Middleware())

	engine.GET("/healthcheck", api.Healthcheck(cfg.HealthcheckPath))
	api.NewSessionHandler(store, cfg.Auth, logger).RegisterRoutes(engine.Group("/"))

	icalHandler := api.NewIcalHandler(store, manager, logger)
	// the keyed feed is reachable without a session
	icalHandler.RegisterPublicRoutes(engine.Group("/api/v0"))

	v0 := engine.Group("/api/v0")
	v0.Use(manager.LoginRequired())
	api.NewEventsHandler(store, eventEngine, logger).RegisterRoutes(v0)
	api.NewSchedulesHandler(store, schedEngine, manager, logger).RegisterRoutes(v0)
	api.NewOncallHandler(store, logger).RegisterRoutes(v0)
	api.NewNotificationsHandler(store, manager, logger).RegisterRoutes(v0)
	icalHandler.RegisterRoutes(v0)

	srv := &Server{
		http: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      engine,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
	cleanup := func() {
		store.Close()
	}
	logger.Info().Msgf("listening on %s", cfg.Server.Addr())
	return srv, cleanup, nil
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
