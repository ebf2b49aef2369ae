package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ginprometheus "github.com/zsais/go-gin-prometheus"

	"scene-server/internal/auth"
	"scene-server/internal/config"
	"scene-server/internal/database"
	"scene-server/internal/handler"
	"scene-server/internal/messaging"
	"scene-server/internal/script"
	"scene-server/internal/service"
	"scene-server/internal/worker"
	"scene-server/pkg/ai"
	"scene-server/pkg/logger"
	"scene-server/pkg/migration"
)

func main() {
	// --- Configuration ---
	// .env необязателен: в контейнере конфигурация приходит из окружения.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger = logger.WithService(zapLogger, "scene-server")
	defer zapLogger.Sync()

	zap.ReplaceGlobals(zapLogger)
	zap.L().Info("Logger initialized successfully", zap.String("logLevel", cfg.LogLevel))

	// --- External Connections ---
	pgPool, err := setupPostgres(cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zap.L().Info("Connected to PostgreSQL")

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: database.MigrationsPath,
		MigrationsFS:   database.MigrationsFS(),
	}, pgPool)
	if err := migrator.Up(context.Background()); err != nil {
		zap.L().Fatal("Failed to apply database migrations", zap.Error(err))
	}
	zap.L().Info("Database migrations applied")

	redisClient, err := setupRedis(cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis")

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zap.L().Info("Connected to RabbitMQ")

	// --- AI Provider ---
	provider, err := buildAIProvider(cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize AI provider", zap.Error(err))
	}
	zap.L().Info("AI provider initialized", zap.String("provider", cfg.AIProvider), zap.String("model", cfg.AIModel))

	// --- Dependency Injection ---
	userRepo := database.NewPgUserRepository(pgPool, zapLogger.Named("PgUserRepo"))
	saveRepo := database.NewPgSaveRepository(pgPool, zapLogger.Named("PgSaveRepo"))
	roleRepo := database.NewPgRoleRepository(pgPool, zapLogger.Named("PgRoleRepo"))
	lineRepo := database.NewPgLineRepository(pgPool, zapLogger.Named("PgLineRepo"))
	tokenRepo := database.NewRedisTokenRepository(redisClient, zapLogger.Named("RedisTokenRepo"))
	bankRepo := database.NewRedisMemoryBankRepository(redisClient, zapLogger.Named("RedisBankRepo"))

	authSvc := auth.NewService(userRepo, tokenRepo, auth.Config{
		JWTSecret:       cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, zapLogger)

	broker := messaging.NewEventBroker(zapLogger)

	taskPublisher, err := messaging.NewRabbitMQEnrichmentTaskPublisher(mqConn, cfg.EnrichmentQueueName)
	if err != nil {
		zap.L().Fatal("Failed to create enrichment task publisher", zap.Error(err))
	}

	library, err := script.NewScriptLibrary(cfg.ScriptsDir, zapLogger)
	if err != nil {
		zap.L().Fatal("Failed to load script library", zap.Error(err), zap.String("dir", cfg.ScriptsDir))
	}
	registry := script.DefaultRegistry()

	sessions := service.NewSessionManager(zapLogger)
	bankSvc := service.NewMemoryBankService(provider, bankRepo, cfg.MemoryBankThreshold, zapLogger)
	dialogueSvc := service.NewDialogueService(sessions, provider, broker, taskPublisher, bankSvc, lineRepo,
		ai.GenerationParams{Temperature: &cfg.AITemperature}, zapLogger)
	gameSvc := service.NewGameService(sessions, library, registry, dialogueSvc, broker, roleRepo, lineRepo, zapLogger)

	// --- Enrichment Worker ---
	classifier := worker.NewProviderClassifier(provider)
	var synthesizer worker.SpeechSynthesizer
	if cfg.TTSBaseURL != "" {
		tts, err := worker.NewHTTPSynthesizer(cfg.TTSBaseURL, cfg.TTSSpeakerID, cfg.TTSOutputDir)
		if err != nil {
			zap.L().Fatal("Failed to initialize TTS synthesizer", zap.Error(err))
		}
		synthesizer = tts
		zap.L().Info("TTS synthesizer initialized", zap.String("url", cfg.TTSBaseURL))
	} else {
		zap.L().Info("TTS synthesizer disabled (TTS_BASE_URL is empty)")
	}
	processor := worker.NewEnrichmentProcessor(classifier, synthesizer, lineRepo, sessions, broker)
	consumer := worker.NewEnrichmentConsumer(mqConn, processor, cfg.EnrichmentQueueName)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(handler.ZapLoggingMiddleware(zapLogger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	handler.NewAuthHandler(authSvc).RegisterRoutes(router)
	handler.NewGameHandler(gameSvc, saveRepo, authSvc, zapLogger).RegisterRoutes(router)
	handler.NewWSHandler(broker, authSvc, saveRepo, zapLogger).RegisterRoutes(router)

	// Метрики регистрируются после роутов, чтобы путь попадал в лейблы.
	p.Use(router)

	// --- Start Background Workers (Consumers) ---
	go func() {
		zap.L().Info("Starting EnrichmentConsumer...")
		if err := consumer.StartConsuming(); err != nil {
			zap.L().Error("EnrichmentConsumer stopped with error", zap.Error(err))
		} else {
			zap.L().Info("EnrichmentConsumer stopped gracefully")
		}
	}()

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.Port))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}

// buildAIProvider выбирает реализацию провайдера по конфигурации.
func buildAIProvider(cfg *config.Config) (ai.Provider, error) {
	switch strings.ToLower(cfg.AIProvider) {
	case "ollama":
		return ai.NewOllamaProvider(cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	case "openai":
		return ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:     cfg.AIAPIKey,
			BaseURL:    cfg.AIBaseURL,
			Model:      cfg.AIModel,
			Timeout:    cfg.AITimeout,
			MaxRetries: cfg.AIMaxRetries,
		})
	default:
		return nil, fmt.Errorf("неизвестный AI-провайдер: %q", cfg.AIProvider)
	}
}

// setupPostgres initializes the PostgreSQL connection pool with retry logic.
func setupPostgres(cfg *config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second

	zap.L().Info("Attempting to connect to PostgreSQL", zap.Int("max_retries", maxRetries), zap.Duration("retry_delay", retryDelay))

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		p, err := database.NewPgxPool(connectCtx, cfg.GetDSN())
		connectCancel()

		if err == nil {
			pool = p
			zap.L().Info("Successfully connected to PostgreSQL", zap.Int("attempt", attempt))
			return pool, nil
		}

		lastErr = fmt.Errorf("postgres connection failed (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Postgres connection failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, lastErr
}

// setupRedis initializes the Redis client with retry logic.
func setupRedis(cfg *config.Config) (*redis.Client, error) {
	var client *redis.Client
	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second

	zap.L().Info("Attempting to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Int("max_retries", maxRetries))

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		c, err := database.NewRedisClient(connectCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		connectCancel()

		if err == nil {
			client = c
			zap.L().Info("Successfully connected to Redis", zap.Int("attempt", attempt))
			return client, nil
		}

		lastErr = fmt.Errorf("redis connection failed (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Redis connection failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, lastErr
}

// connectRabbitMQ устанавливает соединение с RabbitMQ с ретраями.
func connectRabbitMQ(url string, log *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 50
	retryDelay := 3 * time.Second

	log.Info("Attempting to connect to RabbitMQ", zap.Int("max_retries", maxRetries), zap.Duration("retry_delay", retryDelay))

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		conn, err = amqp.Dial(url)
		if err == nil {
			log.Info("Successfully connected to RabbitMQ", zap.Int("attempt", attempt))

			go func() {
				closeErr := <-conn.NotifyClose(make(chan *amqp.Error))
				if closeErr != nil {
					log.Error("RabbitMQ connection closed unexpectedly", zap.Error(closeErr))
				}
			}()
			return conn, nil
		}

		log.Warn("RabbitMQ connection failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("rabbitmq connection failed after %d attempts: %w", maxRetries, err)
}
