package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vigil/backend/internal/api"
	"github.com/vigil/backend/internal/audit"
	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/enrollment"
	"github.com/vigil/backend/internal/events"
	"github.com/vigil/backend/internal/lease"
	"github.com/vigil/backend/internal/metrics"
	"github.com/vigil/backend/internal/provider"
	"github.com/vigil/backend/internal/session"
	"github.com/vigil/backend/internal/store"
)

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg := loadConfig()

	bus := events.NewBus()

	// Template store: Redis when configured, in-memory otherwise. When
	// Redis is up, the same connection relays events to other processes.
	var templates store.TemplateStore
	if addr := cfg.Store.RedisAddr; addr != "" {
		redisStore, err := store.NewRedisStore(addr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, falling back to in-memory templates", "error", err)
			templates = store.NewMemoryStore()
		} else {
			defer redisStore.Close()
			templates = redisStore

			relay := events.NewRedisRelay(redisStore.Client(), "vigil:events", bus)
			defer relay.Close()
		}
	} else {
		templates = store.NewMemoryStore()
	}

	// Audit trail: optional Postgres sink.
	var auditStore audit.Store
	if dsn := cfg.Audit.PostgresDSN; dsn != "" {
		pg, err := audit.NewPostgresStore(dsn)
		if err != nil {
			slog.Warn("audit store unavailable, transitions will not be persisted", "error", err)
		} else {
			defer pg.Close()
			auditStore = pg
		}
	}

	m := metrics.New()
	leases := lease.NewManager()

	// The real detector processes attach over the provider boundary;
	// the built-in simulator keeps the loop alive without them.
	detectors := provider.NewSimulated()

	sessions, err := session.NewService(cfg.Verification, leases, templates, detectors, bus, m)
	if err != nil {
		log.Fatalf("invalid verification config: %v", err)
	}
	enroller := enrollment.NewEnroller(leases, templates, detectors)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if auditStore != nil {
		recorder := audit.NewRecorder(auditStore, bus)
		go recorder.Run(ctx)
	}

	server := api.NewServer(sessions, enroller, leases, auditStore, bus)

	// Graceful shutdown: stop sessions first so every lease is released,
	// then drain HTTP and return through main's defers.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		sessions.StopAll()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown failed", "error", err)
		}
	}()

	slog.Info("vigil backend starting", "port", cfg.Server.Port)
	if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
	slog.Info("vigil backend stopped")
}

func loadConfig() *config.Config {
	path := os.Getenv("VIGIL_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no config file, using defaults", "path", path)
			return &config.Config{
				Server:       config.ServerConfig{Port: "8080"},
				Verification: config.DefaultVerification(),
			}
		}
		log.Fatalf("config load failed: %v", err)
	}
	return cfg
}
