package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	nethttp "net/http"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/tspence/api-key-generator/internal/application/service"
	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/infrastructure/algorithms"
	"github.com/tspence/api-key-generator/internal/infrastructure/audit"
	"github.com/tspence/api-key-generator/internal/infrastructure/consumers"
	"github.com/tspence/api-key-generator/internal/infrastructure/monitoring"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/redis"
	"github.com/tspence/api-key-generator/internal/infrastructure/ratelimit"
	grpcapi "github.com/tspence/api-key-generator/internal/interfaces/grpc"
	httpapi "github.com/tspence/api-key-generator/internal/interfaces/http"
	"github.com/tspence/api-key-generator/internal/interfaces/http/handlers"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// application holds the wired components of the server process.
type application struct {
	cfg        *config.Config
	log        logger.Logger
	tracing    *monitoring.TracingManager
	metrics    *monitoring.Metrics
	backend    *persistence.Backend
	algorithms *algorithms.Set
	keys       service.KeyAppService
	limiter    ratelimit.Limiter
	auditor    audit.Publisher
	router     *httpapi.Router
	grpc       *grpcapi.Server

	// revocations is set when kafka and the L1 cache are both enabled.
	revocations *consumers.RevocationConsumer

	closers []io.Closer
}

// newApplication builds every component from cfg. On error, anything
// already opened is released.
func newApplication(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *application, err error) {
	app := &application{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = app.close(ctx)
		}
	}()

	if app.tracing, err = monitoring.NewTracingManager(ctx, cfg.Tracing, log); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	if app.metrics, err = monitoring.NewMetrics(); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if app.backend, err = persistence.Open(ctx, cfg, app.metrics, log); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	app.closers = append(app.closers, app.backend.Keys)

	if app.algorithms, err = algorithms.FromConfig(&cfg.APIKey); err != nil {
		return nil, fmt.Errorf("algorithms: %w", err)
	}
	repo := persistence.NewKeyRepository(app.backend.Keys, app.algorithms)

	opts := []apikey.Option{
		apikey.WithLogger(log.WithComponent("apikey")),
		apikey.WithMetrics(app.metrics.APIKey),
		apikey.WithTracer(app.tracing.Tracer()),
	}
	validator := apikey.NewValidator(repo, opts...)

	var authenticator service.Authenticator = service.Uncached(validator)
	if cfg.APIKey.Cache.Enabled {
		authenticator = apikey.NewCachedValidator(validator, apikey.SystemClock{},
			cfg.APIKey.Cache.FreshWindow, cfg.APIKey.Cache.StaleWindow, opts...)
	}

	if app.auditor, err = newAuditPublisher(ctx, cfg, app.backend, log); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	app.closers = append(app.closers, app.auditor)

	if cfg.Kafka.Enabled && cfg.Kafka.ConsumeRevocations && app.backend.L1 != nil {
		app.revocations = consumers.NewRevocationConsumer(cfg.Kafka, app.backend.L1, log)
	}

	if cfg.RateLimit.Enabled {
		if app.limiter, err = app.newLimiter(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		app.closers = append(app.closers, app.limiter)
	}

	app.keys = service.NewKeyAppService(service.Dependencies{
		Generator:     validator,
		Authenticator: authenticator,
		Store:         app.backend.Keys,
		Algorithms:    app.algorithms,
		Auditor:       app.auditor,
		Recorder:      app.metrics,
		Logger:        log.WithComponent("key_service"),
	})

	app.router = httpapi.NewRouter(cfg.Server, log, httpapi.Dependencies{
		Keys:           app.keys,
		HealthChecks:   map[string]handlers.Pinger{"storage": app.backend.Keys},
		MetricsHandler: app.metrics.Handler(),
		Recorder:       app.metrics,
		Tracer:         app.tracing.Tracer(),
		Limiter:        app.limiter,
	})

	if cfg.GRPC.Enabled {
		chain := grpcapi.NewInterceptorChain(log, app.keys, app.limiter, app.metrics)
		app.grpc = grpcapi.NewServer(cfg.GRPC, log, chain)
	}
	return app, nil
}

func newAuditPublisher(ctx context.Context, cfg *config.Config, backend *persistence.Backend, log logger.Logger) (audit.Publisher, error) {
	switch {
	case cfg.Kafka.Enabled:
		return audit.NewKafkaProducer(cfg.Kafka, log), nil
	case backend.SQL != nil:
		return audit.NewGormPublisher(ctx, backend.SQL, cfg.Database.AutoMigrate)
	default:
		return audit.NewLogPublisher(log), nil
	}
}

// newLimiter reuses the storage redis client when there is one.
func (a *application) newLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	var client goredis.UniversalClient
	if a.cfg.RateLimit.Backend == config.DriverRedis {
		client = a.backend.Redis
		if client == nil {
			conn, err := redis.NewRedisConnection(ctx, a.cfg.Redis, a.log)
			if err != nil {
				return nil, err
			}
			client = conn.Client
			a.closers = append(a.closers, conn)
		}
	}
	return ratelimit.New(a.cfg.RateLimit, client, a.log)
}

// reload applies a changed configuration file. Only the algorithm set is
// hot-swappable; everything else needs a restart.
func (a *application) reload(cfg *config.Config) {
	ctx := context.Background()
	if err := a.algorithms.Reload(&cfg.APIKey); err != nil {
		a.log.Error(ctx, "algorithm reload rejected", err)
		return
	}
	a.log.Info(ctx, "algorithms reloaded",
		logger.String("new_key_algorithm", cfg.APIKey.NewKeyAlgorithm),
		logger.Int("algorithms", len(cfg.APIKey.Algorithms)),
	)
}

// run serves until ctx is cancelled or a listener fails, then shuts down.
func (a *application) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.router.Start(); err != nil && !stderrors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.grpc != nil {
		g.Go(func() error {
			if err := a.grpc.Start(); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	if a.revocations != nil {
		g.Go(func() error { return a.revocations.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if a.grpc != nil {
			a.grpc.Stop(shutdownCtx)
		}
		return a.router.Stop(shutdownCtx)
	})

	return g.Wait()
}

// close releases resources in reverse order of acquisition.
func (a *application) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
