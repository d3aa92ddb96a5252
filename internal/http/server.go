// Package http is the thin request surface: bind, validate, call the
// service, map errors to status codes. No domain logic lives here.
package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/outboxlab/eventgate/internal/analytics"
	"github.com/outboxlab/eventgate/internal/config"
	"github.com/outboxlab/eventgate/internal/domain/user"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/eventbus"
	"github.com/outboxlab/eventgate/internal/eventstore"
	"github.com/outboxlab/eventgate/internal/http/middleware"
	"github.com/outboxlab/eventgate/internal/mailer"
	"github.com/outboxlab/eventgate/internal/metrics"
	"github.com/outboxlab/eventgate/internal/notify"
	"github.com/outboxlab/eventgate/internal/outbox"
	"github.com/outboxlab/eventgate/internal/service/account"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) (*Server, error) {
	// event model
	registry := event.NewRegistry()
	chain := event.NewUpcasterChain()
	if err := user.RegisterTypes(registry, chain); err != nil {
		return nil, fmt.Errorf("register event types: %w", err)
	}

	renderer := mailer.NewRenderer()
	if err := mailer.RegisterDefaultTemplates(renderer); err != nil {
		return nil, fmt.Errorf("register templates: %w", err)
	}

	// stores
	outboxStore := outbox.NewMySQLStore(mysqlDB)
	store := eventstore.New(eventstore.NewMySQLStorage(mysqlDB), registry, chain)
	store.RegisterTxHook(notify.NewEnqueuer(registry, renderer, outboxStore).Hook())

	// post-commit subscribers
	bus := eventbus.New()
	analyticsRepo := analytics.NewRepository(clickhouseDB)
	bus.Subscribe(analytics.Subscriber(analyticsRepo))

	// services
	accountSvc := account.New(user.NewRepository(store, bus))

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis: rds,
		RPS:   cfg.RateLimit.RPS,
	})

	v1 := e.Group("/v1", rlMW)
	v1.POST("/users", registerUserHandler(accountSvc))
	v1.GET("/users/:id", getUserHandler(accountSvc))
	v1.POST("/users/:id/email", changeEmailHandler(accountSvc))
	v1.POST("/users/:id/password", changePasswordHandler(accountSvc))
	v1.GET("/outbox/stats", outboxStatsHandler(outboxStore))
	v1.GET("/outbox/events/:event_id", outboxByEventHandler(outboxStore))
	v1.GET("/reports/events", eventsReportHandler(analyticsRepo))

	return &Server{e: e}, nil
}

func (s *Server) Start(addr string) error { return s.e.Start(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
