package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/config"
	"github.com/stayrate/pricing-service/internal/baseprice"
	"github.com/stayrate/pricing-service/internal/database"
	"github.com/stayrate/pricing-service/internal/demand"
	"github.com/stayrate/pricing-service/internal/events"
	"github.com/stayrate/pricing-service/internal/handlers"
	"github.com/stayrate/pricing-service/internal/ledger"
	"github.com/stayrate/pricing-service/internal/middleware"
	"github.com/stayrate/pricing-service/internal/orchestrator"
	"github.com/stayrate/pricing-service/internal/pricing/ai"
	"github.com/stayrate/pricing-service/internal/pricing/fallback"
	"github.com/stayrate/pricing-service/internal/pricing/rules"
	"github.com/stayrate/pricing-service/internal/sweepers"
	"github.com/stayrate/pricing-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting pricing service")

	ctx := context.Background()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	pool := database.Pool()

	// Event publishing degrades to a no-op when Redis is not
	// configured; the pricing pipeline never depends on the broker.
	var publisher events.Publisher = events.NopPublisher{}
	var redisClient *redis.Client
	if cfg.Events.Enabled && cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid Redis URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, events will be retried per publish")
		}
		publisher = events.NewRedisPublisher(redisClient, cfg.Events.Channel, logger)
		logger.Info().Str("channel", cfg.Events.Channel).Msg("Event publishing enabled")
	}

	// Pricing pipeline wiring.
	decisionLedger := ledger.New(pool, logger)

	ruleStore := rules.NewPGStore(pool)
	ruleEngine := rules.NewEngine(ruleStore, rules.Config{
		FloorMultiplier:   decimal.NewFromFloat(cfg.Pricing.FloorMultiplier),
		CeilingMultiplier: decimal.NewFromFloat(cfg.Pricing.CeilingMultiplier),
	}, logger)

	baseResolver := baseprice.NewResolver(baseprice.NewPGStore(pool), baseprice.DefaultDefaults(), logger)
	demandProvider := demand.NewPGProvider(pool)

	var gate orchestrator.SuggestionGate
	if cfg.AI.Enabled && cfg.AI.Endpoint != "" {
		gateCfg := ai.DefaultGateConfig()
		gateCfg.MinConfidence = cfg.AI.MinConfidence
		gateCfg.MaxDeviation = cfg.AI.MaxDeviation
		gateCfg.Timeout = cfg.AI.Timeout
		gateCfg.FloorMultiplier = decimal.NewFromFloat(cfg.Pricing.FloorMultiplier)
		gateCfg.CeilingMultiplier = decimal.NewFromFloat(cfg.Pricing.CeilingMultiplier)
		suggester := ai.NewHTTPSuggester(ai.HTTPSuggesterConfig{
			Endpoint: cfg.AI.Endpoint,
			APIKey:   cfg.AI.APIKey,
		})
		gate = ai.NewGate(suggester, gateCfg, logger)
		logger.Info().Str("endpoint", cfg.AI.Endpoint).Msg("AI pricing enabled")
	}

	fallbackCfg := fallback.DefaultConfig()
	fallbackCfg.Strategy = fallback.Strategy(cfg.Fallback.Strategy)
	fallbackCfg.CacheTTL = cfg.Fallback.CacheTTL
	fallbackController := fallback.NewController(ruleEngine, decisionLedger, fallbackCfg, logger)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.AIEnabled = cfg.AI.Enabled
	orchCfg.ValidFor = cfg.Pricing.DecisionValidFor
	orchCfg.EstimateSpread = decimal.NewFromFloat(cfg.Pricing.EstimateSpread)
	orch := orchestrator.New(
		baseResolver,
		demandProvider,
		gate,
		fallbackController,
		decisionLedger,
		ruleEngine,
		publisher,
		orchCfg,
		logger,
	)

	// Background sweepers.
	decisionSweeper := sweepers.NewDecisionSweeper(decisionLedger, publisher, logger, cfg.Sweep.DecisionInterval)
	go decisionSweeper.Start(ctx)
	ruleSweeper := sweepers.NewRuleSweeper(ruleStore, publisher, logger, cfg.Sweep.RuleInterval)
	go ruleSweeper.Start(ctx)

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	pricingHandler := handlers.NewPricingHandler(orch, logger)
	decisionHandler := handlers.NewDecisionHandler(decisionLedger, publisher, logger)
	ruleHandler := handlers.NewRuleHandler(ruleStore, pool, publisher, logger)
	demandHandler := handlers.NewDemandHandler(demandProvider, publisher, logger)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	}))
	{
		pricing := api.Group("/pricing")
		{
			pricing.POST("/calculate", pricingHandler.CalculatePrice)
			pricing.POST("/estimate", pricingHandler.EstimatePrice)

			decisions := pricing.Group("/decisions")
			{
				decisions.GET("/:reference", decisionHandler.GetDecision)
				decisions.PATCH("/:reference/status", decisionHandler.UpdateStatus)
				decisions.GET("/:reference/audit", decisionHandler.GetAuditTrail)
			}
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.Server.InternalAPIKey))
	internal.Use(middleware.ServiceRateLimitMiddleware(50, 100))
	{
		internal.GET("/health", handlers.HealthCheck)

		internalRules := internal.Group("/rules")
		{
			internalRules.GET("", ruleHandler.ListRules)
			internalRules.PATCH("/:code/status", ruleHandler.UpdateRuleStatus)
		}

		internal.POST("/demand", demandHandler.UpdateDemand)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	decisionSweeper.Stop()
	ruleSweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("Redis close failed")
		}
	}
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "pricing-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
