// Package http exposes key issuing and key-authenticated endpoints over gin.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tspence/api-key-generator/internal/application/dto"
	"github.com/tspence/api-key-generator/internal/application/service"
	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/infrastructure/ratelimit"
	"github.com/tspence/api-key-generator/internal/interfaces/http/handlers"
	"github.com/tspence/api-key-generator/internal/interfaces/http/middleware"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// Dependencies are the collaborators of the HTTP router.
type Dependencies struct {
	Keys           service.KeyAppService
	HealthChecks   map[string]handlers.Pinger
	MetricsHandler http.Handler            // optional; serves /metrics
	Recorder       middleware.HTTPRecorder // optional
	Tracer         trace.Tracer            // optional
	Limiter        ratelimit.Limiter       // optional; applied to key-authenticated routes
}

// Router owns the gin engine and the HTTP server.
type Router struct {
	engine        *gin.Engine
	config        config.ServerConfig
	logger        logger.Logger
	deps          Dependencies
	keyHandler    *handlers.KeyHandler
	healthHandler *handlers.HealthHandler
	server        *http.Server
}

// NewRouter creates a router with every route registered.
func NewRouter(cfg config.ServerConfig, log logger.Logger, deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}

	r := &Router{
		engine:        gin.New(),
		config:        cfg,
		logger:        log.WithComponent("HTTPRouter"),
		deps:          deps,
		keyHandler:    handlers.NewKeyHandler(deps.Keys),
		healthHandler: handlers.NewHealthHandler(deps.HealthChecks, log),
	}
	r.setupRoutes()
	r.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r.engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		MaxHeaderBytes:    1 << 20,
	}
	return r
}

func (r *Router) setupRoutes() {
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.ObservabilityMiddleware(r.deps.Tracer, r.deps.Recorder))
	r.engine.Use(middleware.Logging(r.logger))

	if len(r.config.CORSOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:  r.config.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", constants.HeaderAuthorization, constants.HeaderAPIKey, constants.HeaderRequestID},
			ExposeHeaders: []string{constants.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/live", r.healthHandler.LivenessCheck)
	if r.deps.MetricsHandler != nil {
		r.engine.GET("/metrics", gin.WrapH(r.deps.MetricsHandler))
	}
	if r.config.EnablePprof {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/v1")
	{
		keys := v1.Group("/keys")
		keys.POST("", r.keyHandler.IssueKey)

		self := keys.Group("/self")
		if r.deps.Limiter != nil {
			self.Use(middleware.RateLimitMiddleware(r.deps.Limiter, r.logger))
		}
		self.Use(middleware.RequireAPIKey(r.deps.Keys))
		self.GET("", r.keyHandler.Self)
		self.DELETE("", r.keyHandler.RevokeSelf)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		dto.SendError(c, errors.ErrNotFound("route", c.Request.URL.Path))
	})
}

// Engine returns the gin engine, for tests and for mounting extra routes.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}
