package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-pos/internal/devserver"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: "pos-devserver", Level: logger.ParseLevel("info")})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, "no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "pos-devserver",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	seed, err := devserver.LoadSeed(cfg.DevServer.SeedFile)
	if err != nil {
		logg.Error(ctx, "failed to load seed", err)
		os.Exit(1)
	}

	var kv redis.KV = redis.NewMemory()
	if cfg.Redis.Enabled() {
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to connect to redis", err)
			os.Exit(1)
		}
		defer client.Close()
		kv = client
	}

	srv, err := devserver.NewServer(devserver.ServerParams{
		Config:         cfg.DevServer,
		Seed:           seed,
		KV:             kv,
		Logger:         logg,
		SeedOrderLimit: cfg.Sync.SeedOrderLimit,
	})
	if err != nil {
		logg.Error(ctx, "failed to build server", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.DevServer.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "shutdown failed", err)
		}
	}()

	logg.Info(logg.WithFields(ctx, map[string]any{
		"addr":      cfg.DevServer.Addr,
		"base_path": cfg.DevServer.BasePath,
		"branches":  len(seed.Branches),
	}), "dev sync server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "server stopped", err)
		os.Exit(1)
	}
}
