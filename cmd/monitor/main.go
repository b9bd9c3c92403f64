package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/api"
	"github.com/mvnascimento/queuewatch/internal/chatapi"
	"github.com/mvnascimento/queuewatch/internal/config"
	"github.com/mvnascimento/queuewatch/internal/coordinator"
	"github.com/mvnascimento/queuewatch/internal/eligibility"
	"github.com/mvnascimento/queuewatch/internal/health"
	"github.com/mvnascimento/queuewatch/internal/observ"
	"github.com/mvnascimento/queuewatch/internal/redis"
	"github.com/mvnascimento/queuewatch/internal/scheduler"
	"github.com/mvnascimento/queuewatch/internal/settings"
	"github.com/mvnascimento/queuewatch/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting queuewatch monitor",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	ctx := context.Background()

	// Storage: remote Postgres preferred, local JSON files as fallback.
	tracker := health.NewTracker("remote-store", logger)

	remote, err := store.NewPostgres(cfg.StoreURL, cfg.StoreServiceKey, tracker, logger)
	if err != nil {
		return fmt.Errorf("remote store misconfigured: %w", err)
	}
	defer remote.Close()

	local, err := store.NewLocal(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("local store unavailable: %w", err)
	}

	// Redis exclusion cache is optional; the system runs without it.
	var cache *redis.ExclusionCache
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, exclusion cache disabled", zap.Error(err))
	} else {
		cache = redis.NewExclusionCache(redisClient, logger)
		defer redisClient.Close()
	}

	orchestrator := store.NewOrchestrator(remote, local, cache, tracker, logger)
	orchestrator.Initialize(ctx)

	mgr := settings.NewManager(orchestrator, logger)
	mgr.Load(ctx)

	// Chat API collaborator; LogClient keeps development usable without
	// credentials.
	var client chatapi.Client
	if cfg.ChatAPIBaseURL != "" {
		httpClient, err := chatapi.NewHTTPClient(chatapi.HTTPConfig{
			BaseURL: cfg.ChatAPIBaseURL,
			Token:   cfg.ChatAPIToken,
			Timeout: time.Duration(cfg.ChatAPITimeout) * time.Second,
		}, logger)
		if err != nil {
			return fmt.Errorf("chat api client: %w", err)
		}
		client = httpClient
	} else {
		logger.Warn("CHAT_API_BASE_URL not set, using log-only chat client")
		client = chatapi.NewLogClient(logger)
	}

	eval := &eligibility.Evaluator{}
	coord := coordinator.New(client, orchestrator, mgr, eval, coordinator.Config{
		Card30MinID:    cfg.Card30MinID,
		CardEndOfDayID: cfg.CardEndOfDayID,
		Location:       loc,
	}, logger)

	sched := scheduler.New(coord, logger)
	if err := sched.Start(scheduler.Config{
		PollSpec:    cfg.PollSpec,
		CleanupSpec: cfg.CleanupSpec,
		Location:    loc,
	}); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer sched.Stop()

	handler := api.NewHandler(logger, coord, orchestrator, mgr)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("admin api: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin api shutdown incomplete", zap.Error(err))
	}

	return nil
}
