package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orator/internal/battles"
	"orator/internal/config"
	"orator/internal/events"
	"orator/internal/handlers"
	"orator/internal/jobs"
	"orator/internal/llm"
	_ "orator/internal/llm/gemini"
	"orator/internal/metrics"
	"orator/internal/profiles"
	"orator/internal/prompts"
	"orator/internal/ratings"
	"orator/internal/repositories"
	"orator/internal/repositories/memory"
	mongorepo "orator/internal/repositories/mongo"
	"orator/internal/routers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func registerRoutes(router *chi.Mux, battleHandler *handlers.BattleHandler, healthHandler *handlers.HealthHandler) {
	routers.HealthRoutes(router, healthHandler)
	routers.BattleRoutes(router, battleHandler)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// initProfileDatabase initializes the PostgreSQL connection for profiles
func initProfileDatabase() (*gorm.DB, error) {
	host := getEnv("POSTGRES_HOST", "localhost")
	user := getEnv("POSTGRES_USER", "postgres")
	password := getEnv("POSTGRES_PASSWORD", "postgres")
	dbname := getEnv("POSTGRES_DB", "postgres")
	port := getEnv("POSTGRES_PORT", "5432")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, password, dbname, port, sslmode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&profiles.Profile{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// initBattleStore picks Mongo when MONGO_URI is set, otherwise falls back
// to the in-memory store for local development.
func initBattleStore(ctx context.Context, bus *events.Bus, logger *zap.Logger) (repositories.BattleStore, *mongorepo.Client, error) {
	if os.Getenv("MONGO_URI") == "" {
		logger.Warn("MONGO_URI not set, using in-memory battle store")
		return memory.NewBattleRepo(bus), nil, nil
	}

	client, err := mongorepo.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	repo, err := mongorepo.NewBattleRepo(client, bus)
	if err != nil {
		return nil, nil, err
	}
	return repo, client, nil
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("provider", cfg.Provider),
		zap.String("redis", cfg.RedisAddr))

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	bus := events.NewBus(rdb, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, mongoClient, err := initBattleStore(ctx, bus, logger)
	if err != nil {
		logger.Fatal("Failed to initialize battle store", zap.Error(err))
	}

	// prompt manager
	promptManager, err := prompts.NewManager()
	if err != nil {
		logger.Fatal("Failed to initialize prompt manager", zap.Error(err))
	}

	// evaluation provider based on configuration
	provider, err := llm.NewProvider(cfg.Provider)
	if err != nil {
		logger.Fatal("Failed to initialize evaluation provider", zap.Error(err))
	}

	evaluator := battles.NewEvaluator(provider, promptManager, logger)
	coordinator := battles.NewCoordinator(store, bus, evaluator, []byte(cfg.JWTSecret), logger)

	ratingManager := ratings.NewManager(rdb, logger)
	coordinator.SetRatingManager(ratingManager)

	// reactive loop driving the EVALUATING transition off observed snapshots
	go coordinator.Run(ctx)

	// profile database is optional; battles degrade to raw UIDs without it
	var profileRepo *profiles.Repository
	if db, err := initProfileDatabase(); err != nil {
		logger.Warn("Failed to initialize profile database, display names disabled", zap.Error(err))
	} else {
		profileRepo = profiles.NewRepository(db)
	}

	sweeper := jobs.NewEvaluationSweeper(store, coordinator, &jobs.SweeperConfig{
		Schedule:    cfg.SweepSchedule,
		StuckAfter:  cfg.SweepStuckAfter,
		MaxAttempts: cfg.SweepMaxAttempts,
	}, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("Failed to start evaluation sweeper", zap.Error(err))
	}

	battleHandler := handlers.NewBattleHandler(coordinator, profileRepo, []byte(cfg.JWTSecret), logger)
	battleHandler.SetRatingManager(ratingManager)
	healthHandler := handlers.NewHealthHandler(provider, rdb, cfg)

	router := chi.NewRouter()

	// cors middleware
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	router.Use(metrics.Middleware("battles"))

	registerRoutes(router, battleHandler, healthHandler)

	serverAddr := ":" + cfg.Port

	// http server with timeouts; no write timeout so battle watches can
	// stay open (the websocket manages its own lifecycle)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// starting server in a goroutine
	go func() {
		logger.Info("Battle service starting", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shutdown the server
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("Battle service shutting down...")

	sweeper.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Warn("failed to disconnect mongo client", zap.Error(err))
		}
	}

	logger.Info("Battle service exited")
}
