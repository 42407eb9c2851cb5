// Package server exposes the billing webhook, the messaging status callback
// and the operator API over gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	automationservice "github.com/smallbiznis/noty/internal/automation/service"
	"github.com/smallbiznis/noty/internal/config"
	notificationservice "github.com/smallbiznis/noty/internal/notification/service"
	"github.com/smallbiznis/noty/internal/observability/logger"
	"github.com/smallbiznis/noty/internal/observability/metrics"
	"github.com/smallbiznis/noty/internal/observability/tracing"
	"github.com/smallbiznis/noty/internal/settings"
	trackingservice "github.com/smallbiznis/noty/internal/tracking/service"
	webhookservice "github.com/smallbiznis/noty/internal/webhook/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	webhookRateLimit  = 300
	webhookRateWindow = time.Minute
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	Settings    *settings.Store
	Runner      *automationservice.Runner
	Scheduler   *automationservice.Scheduler `optional:"true"`
	Engine      *trackingservice.Engine
	Webhooks    *webhookservice.Handler
	Dedup       *notificationservice.Dedup
	HTTPMetrics *metrics.HTTPMetrics `optional:"true"`
}

type Server struct {
	cfg       config.Config
	log       *zap.Logger
	db        *gorm.DB
	settings  *settings.Store
	runner    *automationservice.Runner
	scheduler *automationservice.Scheduler
	engine    *trackingservice.Engine
	webhooks  *webhookservice.Handler
	dedup     *notificationservice.Dedup

	router *gin.Engine
}

func NewServer(p Params) *Server {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:       p.Cfg,
		log:       p.Log.Named("server"),
		db:        p.DB,
		settings:  p.Settings,
		runner:    p.Runner,
		scheduler: p.Scheduler,
		engine:    p.Engine,
		webhooks:  p.Webhooks,
		dedup:     p.Dedup,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		Logger:    s.log,
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	router.Use(tracing.GinMiddleware("/healthz", "/metrics"))
	router.Use(metrics.GinMiddleware(p.HTTPMetrics))
	s.router = router
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/healthz", s.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hooks := s.router.Group("/webhooks", s.RateLimited(newRateLimiter(webhookRateLimit, webhookRateWindow, nil)))
	hooks.POST("/billing", s.WebhookTokenRequired(), s.BillingWebhook)
	hooks.POST("/messaging/status", s.MessagingStatusCallback)

	api := s.router.Group("/api", s.AdminKeyRequired())
	api.POST("/automations/:type/run", s.RunAutomation)
	api.GET("/automations/runs", s.ListAutomationRuns)
	api.GET("/webhooks/logs", s.ListWebhookLogs)

	api.GET("/tracking/states", s.ListBlockStates)
	api.POST("/clients/:id/evaluate", s.EvaluateClient)
	api.PUT("/clients/:id/auto-block", s.SetClientAutoBlock)
	api.PUT("/clients/:id/mapping", s.MapClient)
	api.PUT("/clients/:id/access", s.SetClientAccess)

	api.GET("/settings", s.GetSettings)
	api.PUT("/settings", s.UpdateSettings)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(registerHTTP),
)

func registerHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
