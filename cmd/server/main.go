package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "premiumblocker/internal/http"
	"premiumblocker/internal/platform/config"
	"premiumblocker/internal/platform/httpserver"
	"premiumblocker/internal/platform/logger"
	platformmetrics "premiumblocker/internal/platform/metrics"
	platformredis "premiumblocker/internal/platform/redis"
	"premiumblocker/internal/premium/authority"
	"premiumblocker/internal/premium/cache"
	"premiumblocker/internal/premium/engine"
	"premiumblocker/internal/premium/handler"
	"premiumblocker/internal/premium/metrics"
	"premiumblocker/pkg/platform/circuit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Resolution logic lives in internal/premium.
func main() {
	path := config.Path()
	created, ensureErr := config.EnsureFile(path)
	cfg, cfgErr := config.Load(path)
	cfg.ApplyEnv()

	log := logger.New(cfg.Debug)
	if ensureErr != nil {
		log.Warn("could not create default configuration file", "path", path, "error", ensureErr)
	}
	if created {
		log.Info("created default configuration file", "path", path)
	}
	if cfgErr != nil {
		log.Warn("configuration problems, using defaults where needed", "path", path, "error", cfgErr)
	}
	log.Info("premiumblocker starting",
		"enabled", cfg.Enabled,
		"kick_message", cfg.KickMessage,
		"mojang_api_enabled", cfg.MojangAPI.Enabled,
		"cache_backend", cfg.Cache.Backend,
		"debug", cfg.Debug,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := platformmetrics.NewRegistry()
	m := metrics.New(reg)

	store, health, closeStore := buildCache(ctx, cfg, log)
	defer closeStore()

	policy := engine.PolicyFromConfig(cfg)
	var auth engine.Authority
	if policy.APIEnabled {
		breakerCfg := cfg.MojangAPI.CircuitBreaker
		client, err := authority.New(cfg.MojangAPI.URL, cfg.APITimeout(),
			authority.WithUserAgent(cfg.MojangAPI.UserAgent),
			authority.WithLogger(log),
			authority.WithMetrics(m),
			authority.WithBreaker(circuit.New("mojang-api",
				circuit.WithFailureThreshold(breakerCfg.FailureThreshold),
				circuit.WithSuccessThreshold(breakerCfg.SuccessThreshold),
				circuit.WithCooldown(breakerCfg.Cooldown()),
			)),
		)
		if err != nil {
			log.Error("authority client unavailable, continuing with API disabled", "error", err)
			policy.APIEnabled = false
		} else {
			auth = client
		}
	}

	eng, err := engine.New(store, auth, policy,
		engine.WithLogger(log),
		engine.WithMetrics(m),
	)
	if err != nil {
		log.Error("failed to build decision engine", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(log, platformmetrics.Handler(reg), health, handler.New(eng, log))
	srv := httpserver.New(cfg.Server.Addr, router, cfg.APITimeout())

	log.Info("listening", "addr", cfg.Server.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("premiumblocker stopped")
}

// buildCache picks the configured backend, falling back to memory when Redis
// cannot be reached so the proxy keeps working.
func buildCache(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Store, httpapi.HealthCheck, func()) {
	if cfg.Cache.Backend == config.BackendRedis {
		client, err := platformredis.New(ctx, cfg.Cache.Redis)
		if err == nil && client != nil {
			log.Info("using redis status cache")
			return cache.NewRedisCache(client, cfg.CacheTTL(), nil), client.Health, func() { _ = client.Close() }
		}
		log.Warn("redis status cache unavailable, using memory", "error", err)
	}

	mem := cache.NewInMemoryCache(cfg.CacheTTL())
	go mem.RunSweeper(ctx, cfg.Cache.SweepInterval())
	return mem, nil, func() {}
}
