package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/mlagent/answer-engine/pkg/auth"
	"github.com/mlagent/answer-engine/pkg/config"
	"github.com/mlagent/answer-engine/pkg/crypto"
	"github.com/mlagent/answer-engine/pkg/database"
	"github.com/mlagent/answer-engine/pkg/handlers"
	"github.com/mlagent/answer-engine/pkg/logging"
	"github.com/mlagent/answer-engine/pkg/marketplace"
	"github.com/mlagent/answer-engine/pkg/middleware"
	"github.com/mlagent/answer-engine/pkg/notify"
	"github.com/mlagent/answer-engine/pkg/repositories"
	"github.com/mlagent/answer-engine/pkg/retry"
	"github.com/mlagent/answer-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("marketplace", cfg.Marketplace.BaseURL))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.ConnectionString(),
		MaxConnections:  cfg.Database.MaxConnections,
		MaxConnLifetime: time.Duration(cfg.Database.MaxConnLifetimeMinutes) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.Database.MaxConnIdleTimeMinutes) * time.Minute,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// golang-migrate needs a database/sql handle; borrow one from the pool.
	migrationDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient == nil {
		logger.Info("Redis not configured, realtime events disabled")
	}

	cipher, err := crypto.NewTokenCipher(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential cipher", zap.Error(err))
	}

	questionRepo := repositories.NewQuestionRepository()
	accountRepo := repositories.NewAccountRepository()
	orgRepo := repositories.NewOrganizationRepository()

	quotaService := services.NewQuotaService(orgRepo, questionRepo, logger)
	marketplaceClient := marketplace.NewClient(
		cfg.Marketplace.BaseURL,
		time.Duration(cfg.Marketplace.TimeoutSeconds)*time.Second,
		retry.MarketplacePolicy(),
		logger)
	notifier := notify.NewFanout(
		notify.NewRedisEmitter(redisClient, logger),
		notify.NewChatClient(cfg.Chat.BaseURL, cfg.Chat.APIToken),
		questionRepo,
		logger)
	approvalService := services.NewApprovalService(
		questionRepo, accountRepo, quotaService, cipher, marketplaceClient, notifier, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)
	tenantMiddleware := database.WithTenantContext(db, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, db, redisClient, logger)
	healthHandler.RegisterRoutes(mux)

	answersHandler := handlers.NewAnswersHandler(approvalService, questionRepo, logger)
	answersHandler.RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting answer-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, middleware.RequestLogger(logger)(mux)); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
