package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/repair-service/internal/api/http"
	"github.com/spec-kit/repair-service/internal/api/http/handlers"
	"github.com/spec-kit/repair-service/internal/auth"
	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/orchestrator"
	"github.com/spec-kit/repair-service/internal/persistence"
	"github.com/spec-kit/repair-service/internal/repository"
	"github.com/spec-kit/repair-service/internal/service"
	"github.com/spec-kit/repair-service/internal/worker"
)

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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	dispatcher := events.NewInMemoryDispatcher(logger)

	pool := pg.PoolHandle()
	caseRepo := repository.NewCaseRepository(pool)
	slaConfigRepo := repository.NewSLAConfigRepository(pool)
	escalationRepo := repository.NewEscalationRepository(pool)
	technicianRepo := repository.NewTechnicianRepository(pool)
	workflowRepo := repository.NewWorkflowRepository(pool)

	slaService := service.NewSLAService(service.SLADependencies{
		SLAConfigRepo: slaConfigRepo,
		Config:        cfg.SLA,
		Logger:        logger,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		EscalationRepo: escalationRepo,
		Dispatcher:     dispatcher,
		Config:         cfg.SLA,
		Logger:         logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		CaseRepo:       caseRepo,
		TechnicianRepo: technicianRepo,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Config:         cfg.Assignment,
		Logger:         logger,
	})
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		CaseRepo:      caseRepo,
		WorkflowRepo:  workflowRepo,
		SLAConfigRepo: slaConfigRepo,
		Assignment:    assignmentService,
		Client:        orchestrator.NewHTTPClient(cfg.Workflow),
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Config:        cfg.Workflow,
		Logger:        logger,
	})
	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:   caseRepo,
		SLA:        slaService,
		Assignment: assignmentService,
		Workflow:   workflowService,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(dispatcher, metrics, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService, logger)

	monitor := worker.NewSLAMonitor(worker.MonitorDependencies{
		CaseRepo:    caseRepo,
		SLA:         slaService,
		Escalations: escalationService,
		Workflow:    workflowService,
		Locker:      redis,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Config:      cfg.SLA,
		Logger:      logger,
	})
	go monitor.Start(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.ServiceTokenTTLHours)
	serviceAuth := auth.NewServiceAuth(tokens, cfg.Auth.WebhookAPIKeyHash)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Cases:       handlers.NewCasesHandler(caseService, slaService, escalationService, workflowService),
		Technicians: handlers.NewTechniciansHandler(assignmentService),
		Assignments: handlers.NewAssignmentsHandler(assignmentService, caseService),
		Workflow:    handlers.NewWorkflowHandler(workflowService),
		SLA:         handlers.NewSLAHandler(monitor),
		Auth:        serviceAuth,
	})

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr(),
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listen", zap.Error(err))
		}
	}()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = metricsServer.Shutdown(context.Background())
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
