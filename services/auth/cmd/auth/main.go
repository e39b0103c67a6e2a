package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"carbonq/internal/ratelimit"
	"carbonq/internal/util"
	"carbonq/services/auth/internal/app"
	"carbonq/services/auth/internal/config"
	"carbonq/services/auth/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	refreshTTL, err := config.ParseTTL(cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("failed to parse refresh TTL: %v", err)
	}

	logger := util.InitLogger("auth", cfg.LogLevel)

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
		SessionTTL:    sessionTTL,
		RefreshTTL:    refreshTTL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TrustedProxies: trusted,
		AllowedOrigins: cfg.AllowedOrigins,
		SignupLimiter:  newLimiter(cfg, "signup", cfg.SignupRateLimitPerMinute),
		LoginLimiter:   newLimiter(cfg, "login", cfg.LoginRateLimitPerMinute),
		RefreshLimiter: newLimiter(cfg, "refresh", cfg.RefreshRateLimitPerMinute),
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("auth server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newLimiter(cfg config.FileConfig, name string, perMinute int) *ratelimit.FixedWindowLimiter {
	if perMinute <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr,
		cfg.RedisPassword,
		"carbonq:ratelimit:auth:"+name,
		perMinute,
		time.Minute,
	)
	if err != nil {
		log.Fatalf("failed to init %s rate limiter: %v", name, err)
	}
	return limiter
}
