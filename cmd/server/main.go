// Package main is the entry point for the BrightDesk Support Service.
// @title BrightDesk Support Service API
// @version 1.0
// @description Multi-tenant customer support chat core with AI response orchestration and human handoff

// @contact.name API Support
// @contact.email support@brightdesk.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token authentication
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/brightdesk/support-service/docs"
	"github.com/brightdesk/support-service/internal/api/handlers"
	"github.com/brightdesk/support-service/internal/api/middleware"
	"github.com/brightdesk/support-service/internal/api/routes"
	"github.com/brightdesk/support-service/internal/config"
	"github.com/brightdesk/support-service/internal/core/cache"
	"github.com/brightdesk/support-service/internal/core/docdb"
	"github.com/brightdesk/support-service/internal/domain/models"
	rediscache "github.com/brightdesk/support-service/internal/infrastructure/cache/redis"
	"github.com/brightdesk/support-service/internal/infrastructure/docdb/mongodb"
	redislock "github.com/brightdesk/support-service/internal/infrastructure/lock/redis"
	"github.com/brightdesk/support-service/internal/infrastructure/notify/rabbitmq"
	"github.com/brightdesk/support-service/internal/pkg/encryption"
	"github.com/brightdesk/support-service/internal/services/admission"
	"github.com/brightdesk/support-service/internal/services/completion"
	"github.com/brightdesk/support-service/internal/services/completion/openai"
	"github.com/brightdesk/support-service/internal/services/conversation"
	"github.com/brightdesk/support-service/internal/services/dispatch"
	"github.com/brightdesk/support-service/internal/services/notify"
	"github.com/brightdesk/support-service/internal/services/orchestrator"
	"github.com/brightdesk/support-service/internal/services/platform"
	"github.com/brightdesk/support-service/internal/services/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.Log)

	ctx := context.Background()

	// Initialize cache client using factory pattern
	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	defer cacheClient.Close()

	// Initialize document db client using factory pattern
	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	defer docDBClient.Close(ctx)

	// Ensure database indexes
	if err := docDBClient.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	// Initialize encryptor for cached provider credentials
	encryptor, err := createEncryptor(cfg.Security)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	// Initialize notification sender using factory pattern
	notifier, err := createNotifier(cfg.Broker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize notification sender")
	}
	defer notifier.Close()

	// Initialize completion client
	completionClient, err := createCompletionClient(cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize completion client")
	}
	defer completionClient.Close()

	redisClient := cacheClient.GetClient()

	// Platform client with encrypted-at-rest config cache
	platformClient, err := platform.NewCachedClient(&platform.CachedClientConfig{
		Inner: platform.NewClient(&platform.ClientConfig{
			BaseURL:    cfg.Platform.URL,
			ServiceKey: cfg.Platform.ServiceKey,
			Timeout:    cfg.Platform.Timeout,
		}),
		CacheClient: cacheClient,
		Encryptor:   encryptor,
		TTL:         cfg.Cache.TTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize platform client")
	}

	// Admission control: sliding-window rate limit plus monthly quota
	admissionCtrl := admission.NewController(
		admission.NewRateLimiter(redisClient, cfg.AI.RateLimitWindow, cfg.AI.RateLimitMax),
		admission.NewUsageTracker(redisClient),
		platformPlanReader{platformClient},
	)

	// Conversation state machine
	convService := conversation.NewService(&conversation.Config{
		Store:    store.NewMongoStore(docDBClient),
		Locks:    redislock.NewManager(redisClient),
		Platform: platformClient,
		Quota:    admissionCtrl,
		Notifier: notifier,
		Logger:   log.Logger,
		LockTTL:  cfg.AI.LockTTL,
		LockWait: cfg.AI.LockWait,
	})

	// AI response pipeline: debounce gate, admission, retry governor
	scheduler := dispatch.NewScheduler()
	defer scheduler.Stop()

	broadcaster := dispatch.NewBroadcaster()

	pipeline := dispatch.NewPipeline(&dispatch.Config{
		Conversations: convService,
		Platform:      platformClient,
		Admitter:      admissionCtrl,
		Responder: orchestrator.New(completionClient, log.Logger, orchestrator.Options{
			StreamTimeout:     cfg.AI.StreamTimeout,
			StallAfter:        cfg.AI.StallAfter,
			StallPollInterval: cfg.AI.StallPollInterval,
		}),
		Scheduler:     scheduler,
		Broadcaster:   broadcaster,
		Logger:        log.Logger,
		DebounceDelay: cfg.AI.DebounceDelay,
		MaxAttempts:   cfg.AI.MaxAttempts,
		BackoffBase:   cfg.AI.BackoffBase,
		DefaultModel:  cfg.AI.DefaultModel,
	})

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Setup router
	router := setupRouter(cacheClient, docDBClient, convService, pipeline, broadcaster)

	// Create HTTP server
	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// createCacheClient creates a cache client based on the configuration.
func createCacheClient(cfg config.CacheConfig) (*rediscache.Client, error) {
	cacheType := cache.Type(cfg.Type)

	switch cacheType {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.TTL,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("unsupported cache type")
		return nil, nil
	}
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	docDBType := docdb.Type(cfg.Type)

	switch docDBType {
	case docdb.TypeMongoDB, docdb.TypeCosmosDB:
		// CosmosDB uses the MongoDB protocol, so the same client serves both
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("unsupported docdb type")
		return nil, nil
	}
}

// createEncryptor creates an encryptor based on the configuration.
func createEncryptor(cfg config.SecurityConfig) (encryption.Encryptor, error) {
	if cfg.EncryptionKey == "" {
		log.Warn().Msg("SECRETS_ENCRYPTION_KEY not set, using NoOp encryptor")
		return encryption.NewNoOpEncryptor(), nil
	}
	return encryption.NewAESEncryptor(cfg.EncryptionKey)
}

// createNotifier creates a notification sender based on the configuration.
// Without a broker URL notifications are logged only.
func createNotifier(cfg config.BrokerConfig) (notify.Sender, error) {
	if cfg.URL == "" {
		log.Warn().Msg("BROKER_URL not set, using log-only notification sender")
		return notify.NewLogSender(log.Logger), nil
	}
	return rabbitmq.NewPublisher(rabbitmq.Config{
		URL:      cfg.URL,
		Exchange: cfg.Exchange,
		Logger:   log.Logger,
	})
}

// createCompletionClient creates the completion provider client.
func createCompletionClient(cfg config.AIConfig) (completion.Client, error) {
	return openai.NewClient(&openai.Config{
		BaseURL: cfg.CompletionURL,
		APIKey:  cfg.APIKey,
	})
}

// platformPlanReader adapts the platform client to the admission
// controller's plan lookup.
type platformPlanReader struct {
	client platform.Client
}

func (r platformPlanReader) GetPlan(ctx context.Context, tenantID string) (*models.TenantPlan, error) {
	cfg, err := r.client.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &cfg.Plan, nil
}

// setupRouter creates and configures the Gin router.
func setupRouter(
	cacheClient cache.Client,
	docDBClient docdb.Client,
	convService *conversation.Service,
	pipeline *dispatch.Pipeline,
	broadcaster *dispatch.Broadcaster,
) *gin.Engine {
	router := gin.New()

	// Create middleware
	loggingMw := middleware.NewLoggingMiddleware()
	errorMw := middleware.NewErrorMiddleware()
	authMw := middleware.NewAuthMiddleware()
	tenantMw := middleware.NewTenantMiddleware()

	router.Use(middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()))

	// Create handlers
	healthHandler := handlers.NewHealthHandler(cacheClient, docDBClient)
	messagesHandler := handlers.NewMessagesHandler(convService, pipeline, broadcaster)
	conversationsHandler := handlers.NewConversationsHandler(convService, broadcaster)

	// Setup routes
	routesCfg := &routes.Config{
		HealthHandler:        healthHandler,
		MessagesHandler:      messagesHandler,
		ConversationsHandler: conversationsHandler,
		AuthMiddleware:       authMw,
		TenantMiddleware:     tenantMw,
	}

	routes.SetupWithMiddleware(router, routesCfg, loggingMw, errorMw)

	// Swagger documentation endpoint
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}
