package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/civic-desk/complaint-portal/internal/api/http"
	"github.com/civic-desk/complaint-portal/internal/api/http/handlers"
	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/events"
	"github.com/civic-desk/complaint-portal/internal/locks"
	"github.com/civic-desk/complaint-portal/internal/observability"
	"github.com/civic-desk/complaint-portal/internal/persistence"
	"github.com/civic-desk/complaint-portal/internal/presence"
	"github.com/civic-desk/complaint-portal/internal/realtime"
	"github.com/civic-desk/complaint-portal/internal/repository"
	"github.com/civic-desk/complaint-portal/internal/service"
	"github.com/civic-desk/complaint-portal/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	probes := map[string]handlers.Pinger{"redis": redis}
	var (
		accountRepo repository.AccountRepository
		historyRepo repository.LoginHistoryRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		accountRepo = repository.NewAccountRepository(pool)
		historyRepo = repository.NewLoginHistoryRepository(pool)
		probes["postgres"] = pg
	} else {
		store := repository.NewMemoryStore()
		accountRepo = store.Accounts()
		historyRepo = store.LoginHistory()
	}

	mirror := redis.PresenceMirror()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	gate := auth.NewGate(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL()), accountRepo)
	accountLocks := locks.NewKeyedMutex()
	ledger := service.NewLoginLedger(historyRepo, accountRepo)

	accountService := service.NewAccountService(*cfg, service.AccountDependencies{
		AccountRepo: accountRepo,
		Ledger:      ledger,
		Gate:        gate,
		Locks:       accountLocks,
		Dispatcher:  dispatcher,
	}, logger)

	tracker := presence.NewTracker(presence.Dependencies{
		Gate:       gate,
		Ledger:     ledger,
		Locks:      accountLocks,
		Mirror:     mirror,
		Dispatcher: dispatcher,
	}, logger)

	gateway := realtime.NewGateway(cfg.Realtime, realtime.GatewayDependencies{
		Tracker:    tracker,
		Router:     realtime.NewRouter(),
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}, logger)

	worker.StartSubscribers(logger, map[string]worker.Subscriber{
		"notifications": service.NewNotificationService(dispatcher, logger, cfg.Notification),
		"gateway":       gateway,
	})

	if created, err := service.EnsureDefaultAdmin(ctx, accountRepo, *cfg, logger); err != nil {
		logger.Fatal("failed to provision system manager", zap.Error(err))
	} else if created {
		logger.Info("default system manager provisioned", zap.String("email", cfg.Admin.Email))
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes),
		Auth:           handlers.NewAuthHandler(accountService, tracker),
		Managers:       handlers.NewManagersHandler(accountService, tracker, mirror),
		AuthMiddleware: auth.NewAuthMiddleware(gate),
	})

	wsServer := realtime.NewServer(cfg.Realtime.Addr(), gateway)
	reconcilerDone := worker.NewPresenceReconciler(tracker, cfg.Realtime.ReconcileInterval(), logger).Start(ctx)
	keepaliveDone := worker.StartMirrorKeepalive(ctx, mirror, cfg.Redis.PresenceTTL()/3, logger)

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("realtime listening", zap.String("addr", cfg.Realtime.Addr()))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", zap.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("realtime shutdown", zap.Error(err))
	}
	cancel()
	<-reconcilerDone
	<-keepaliveDone

	// live sockets are gone; drop this instance's share of the shared online list
	resetCtx, resetCancel := context.WithTimeout(context.Background(), time.Second)
	defer resetCancel()
	if err := mirror.Reset(resetCtx); err != nil {
		logger.Warn("reset presence mirror", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
