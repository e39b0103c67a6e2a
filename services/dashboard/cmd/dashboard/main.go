package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"carbonq/internal/ratelimit"
	"carbonq/internal/util"
	"carbonq/services/dashboard/internal/app"
	"carbonq/services/dashboard/internal/config"
	"carbonq/services/dashboard/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger("dashboard", cfg.LogLevel)

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		JWTSecret:     cfg.JWTSecret,
		JWTIssuer:     cfg.JWTIssuer,
		JWTAudience:   cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var queryLimiter *ratelimit.FixedWindowLimiter
	if cfg.QueryRateLimitPerMinute > 0 {
		queryLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr,
			cfg.RedisPassword,
			"carbonq:ratelimit:dashboard:query",
			cfg.QueryRateLimitPerMinute,
			time.Minute,
		)
		if err != nil {
			log.Fatalf("failed to init query rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TrustedProxies: trusted,
		AllowedOrigins: cfg.AllowedOrigins,
		QueryLimiter:   queryLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("dashboard server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
