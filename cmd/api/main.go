package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/stde-labs/stde-api/internal/config"
	"github.com/stde-labs/stde-api/internal/database"
	"github.com/stde-labs/stde-api/internal/handler"
	"github.com/stde-labs/stde-api/internal/middleware"
	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/repository"
	"github.com/stde-labs/stde-api/internal/router"
	"github.com/stde-labs/stde-api/internal/service"
	"github.com/stde-labs/stde-api/pkg/ai"
	"github.com/stde-labs/stde-api/pkg/drive"
	"github.com/stde-labs/stde-api/pkg/extract"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Classroom{}, &models.Document{}, &models.Evaluation{}, &models.ActivityLog{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	oracle, err := ai.NewOracle(ai.OracleConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create oracle: %v", err)
	}

	fileStore, err := drive.NewClient(context.Background(), cfg.DriveCredentialsFile, logger)
	if err != nil {
		log.Fatalf("failed to create drive client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	quotaService := service.NewQuotaService(userRepo, logger)
	accessControl := service.NewAccessControl(service.NewClassroomAuthority(classroomRepo), logger)
	activityService := service.NewActivityService(activityRepo, logger)
	eventPublisher := service.NewNATSPublisher(natsConn, cfg.EventSubjectBase, logger)

	evaluationService := service.NewEvaluationService(
		documentRepo,
		evaluationRepo,
		quotaService,
		accessControl,
		fileStore,
		extract.New(),
		oracle,
		oracle,
		activityService,
		eventPublisher,
		redisClient,
		service.EvaluationConfig{
			MaxContentChars: cfg.MaxContentChars,
			ListCacheTTL:    cfg.ListCacheTTL,
		},
		logger,
	)

	evaluationHandler := handler.NewEvaluationHandler(evaluationService, quotaService, validate, logger)
	activityHandler := handler.NewActivityHandler(activityService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: evaluationHandler,
		ActivityHandler:   activityHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
