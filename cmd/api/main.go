package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/database"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/router"
	"github.com/noah-isme/gema-grading-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, cfg.AppEnv == "development")
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled; dashboard cache and leaderboard fall back to postgres")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	publisher := events.NewNATSPublisher(natsConn, cfg.NotificationChannelBase, logger)

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	reviewRepo := repository.NewPeerReviewRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	placementRepo := repository.NewPlacementRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	streakRepo := repository.NewStreakRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.NotificationChannelBase, natsConn, validate, logger)
	streakService := service.NewStreakService(streakRepo, studentRepo, redisClient, validate, notificationService, publisher, activityService, service.StreakConfig{
		Location:       cfg.StreakLocation,
		FreezeTTL:      cfg.StreakFreezeTTL,
		LeaderboardKey: cfg.LeaderboardKey,
	}, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, validate, activityService, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, streakService, notificationService, publisher, activityService, logger)
	gradingService := service.NewGradingService(submissionRepo, reviewRepo, validate, activityService, notificationService, publisher, logger)
	peerReviewService := service.NewPeerReviewService(submissionRepo, reviewRepo, validate, notificationService, publisher, logger)
	quizService := service.NewQuizService(moduleRepo, validate, streakService, publisher, activityService, logger)
	placementService := service.NewPlacementService(placementRepo, studentRepo, validate, notificationService, publisher, activityService, logger)
	dashboardService := service.NewStudentDashboardService(studentRepo, submissionRepo, moduleRepo, streakRepo, redisClient, cfg.DashboardCacheTTL, cfg.StreakLocation, logger)
	analyticsService := service.NewAnalyticsService(analyticsRepo, redisClient, cfg.AnalyticsCacheTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notificationService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler:       handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler:       handler.NewSubmissionHandler(submissionService, middleware.RateLimit("submissions", cfg.SubmitRateLimit, cfg.SubmitRateWindow), logger),
		GradingHandler:          handler.NewGradingHandler(gradingService, peerReviewService, logger),
		QuizHandler:             handler.NewQuizHandler(quizService, logger),
		PlacementHandler:        handler.NewPlacementHandler(placementService, logger),
		StreakHandler:           handler.NewStreakHandler(streakService, logger),
		NotificationHandler:     handler.NewNotificationHandler(notificationService, logger, 30*time.Second),
		StudentDashboardHandler: handler.NewStudentDashboardHandler(dashboardService, logger),
		ActivityHandler:         handler.NewActivityHandler(activityService, logger),
		AnalyticsHandler:        handler.NewAnalyticsHandler(analyticsService, logger),
		HealthProbes:            healthProbes(db, redisClient, natsConn),
		JWTMiddleware: middleware.Authenticate(middleware.JWTConfig{
			Secret: cfg.JWTSecret,
			Issuer: cfg.JWTIssuer,
			Leeway: cfg.JWTLeeway,
		}),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Msg("grading api started")
	waitForShutdown(app, cancel)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return fmt.Errorf("nats status %s", natsConn.Status())
				}
				return nil
			},
		})
	}
	return probes
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
