package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/membership-service/internal/api/http"
	"github.com/spec-kit/membership-service/internal/api/http/handlers"
	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/events"
	"github.com/spec-kit/membership-service/internal/observability"
	"github.com/spec-kit/membership-service/internal/persistence"
	"github.com/spec-kit/membership-service/internal/repository"
	"github.com/spec-kit/membership-service/internal/service"
	"github.com/spec-kit/membership-service/internal/worker"
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

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	memberRepo := repository.NewMemberRepository(pool)
	rangeRepo := repository.NewRangeRepository(pool)
	assessmentRepo := repository.NewAssessmentRepository(pool)
	historyRepo := repository.NewRankHistoryRepository(pool)
	salesRepo := repository.NewSalesRepository(pool)
	applicationRepo := repository.NewApplicationRepository(pool)
	qualificationRepo := repository.NewQualificationRepository(pool)
	operatorRepo := repository.NewOperatorRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	assessmentService := service.NewAssessmentService(cfg.Assessment, service.AssessmentDependencies{
		MemberRepo:     memberRepo,
		RangeRepo:      rangeRepo,
		AssessmentRepo: assessmentRepo,
		HistoryRepo:    historyRepo,
		SalesRepo:      salesRepo,
		TxRunner:       txRunner,
		RunLock:        persistence.NewBatchLock(redis),
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
	})
	promotionService := service.NewPromotionService(cfg.Eligibility, service.PromotionDependencies{
		ApplicationRepo:   applicationRepo,
		MemberRepo:        memberRepo,
		QualificationRepo: qualificationRepo,
		RangeRepo:         rangeRepo,
		TxRunner:          txRunner,
		Dispatcher:        dispatcher,
		Logger:            logger,
	})
	authService := service.NewAuthService(cfg.Auth, operatorRepo)

	notificationService := service.NewNotificationService(dispatcher, logger)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), operatorRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Operators:      handlers.NewOperatorsHandler(authService),
		Assessments:    handlers.NewAssessmentsHandler(assessmentService),
		Applications:   handlers.NewApplicationsHandler(promotionService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
