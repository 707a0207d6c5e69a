package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/squad-service/internal/api/http"
	"github.com/spec-kit/squad-service/internal/api/http/handlers"
	"github.com/spec-kit/squad-service/internal/auth"
	"github.com/spec-kit/squad-service/internal/cohort"
	"github.com/spec-kit/squad-service/internal/config"
	"github.com/spec-kit/squad-service/internal/events"
	"github.com/spec-kit/squad-service/internal/observability"
	"github.com/spec-kit/squad-service/internal/persistence"
	"github.com/spec-kit/squad-service/internal/policy"
	"github.com/spec-kit/squad-service/internal/queue"
	"github.com/spec-kit/squad-service/internal/repository"
	"github.com/spec-kit/squad-service/internal/service"
	"github.com/spec-kit/squad-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	var store repository.Store
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		store = repository.NewPostgresStore(pg.Pool)
	default:
		logger.Warn("using in-memory store; state is lost on restart")
		store = repository.NewMemoryStore()
	}
	readiness := []handlers.Dependency{{Name: cfg.Store.Backend, Pinger: store}}

	var rdb *persistence.Redis
	if cfg.Queue.Backend == "redis" || cfg.Events.RedisChannel != "" {
		rdb, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		readiness = append(readiness, handlers.Dependency{Name: "redis", Pinger: rdb})
	}

	policies, err := policy.Load(cfg.Policy)
	if err != nil {
		logger.Fatal("invalid policy configuration", zap.Error(err))
	}
	resolver := cohort.NewResolver(cfg.Cohort.SeasonYear, cfg.Cohort.BucketYears)

	dispatcher := events.NewInMemoryDispatcher(logger)
	var sinks []events.EventHandler
	if cfg.Events.RedisChannel != "" {
		sinks = append(sinks, events.NewRedisPublisher(rdb.Client, cfg.Events.RedisChannel).Handle)
	}
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, sinks...), logger)

	assignService := service.NewAssignmentService(service.AssignmentDependencies{
		Store:         store,
		Policies:      policies,
		Resolver:      resolver,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Metrics:       metrics,
		MaxTxAttempts: cfg.Assignment.MaxTxAttempts,
	})
	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	memberService := service.NewMemberService(store, logger)

	var jobStore queue.JobStore = queue.NewMemoryStore()
	if cfg.Queue.Backend == "redis" {
		jobStore = queue.NewRedisStore(rdb.Client, cfg.Queue.RedisPrefix)
	}
	jobs := queue.New(jobStore, logger, metrics, queue.WithLease(cfg.Queue.Lease))

	assignmentPool := worker.NewAssignmentPool(jobs, assignService, worker.PoolConfig{
		Workers:        cfg.Queue.Workers,
		MaxAttempts:    cfg.Queue.MaxAttempts,
		BackoffInitial: cfg.Queue.BackoffInitial,
		BackoffMax:     cfg.Queue.BackoffMax,
		PollInterval:   cfg.Queue.PollInterval,
	}, logger)
	janitor := worker.NewJanitor(jobs, cfg.Queue.Retention, cfg.Queue.PruneInterval, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness...),
		Assignments:    handlers.NewAssignmentsHandler(jobs),
		Squads:         handlers.NewSquadsHandler(lifecycleService),
		Members:        handlers.NewMembersHandler(memberService, lifecycleService),
		Policies:       handlers.NewPoliciesHandler(policies),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return assignmentPool.Run(gctx)
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("store", cfg.Store.Backend),
			zap.String("queue", cfg.Queue.Backend))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}
}
