package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmarwaha/release-relay/internal/config"
	"github.com/dmarwaha/release-relay/internal/health"
	"github.com/dmarwaha/release-relay/internal/observability"
	"github.com/dmarwaha/release-relay/internal/proxy"
	"github.com/dmarwaha/release-relay/internal/store"
)

const ShutdownTimeout = 5 * time.Second

func main() {
	log := observability.NewLogger()
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, relying on system ENV variables")
	}

	cfg, err := config.LoadProxy()
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer := observability.InitTracer(context.Background(), "link-proxy", cfg.Observability.OTLPEndpoint)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	signer, err := proxy.NewSigner([]byte(cfg.Proxy.JWTSecret), cfg.Proxy.Domain)
	if err != nil {
		log.Error("Failed to initialize link signer", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthCfg := health.DefaultConfig("link-proxy", log)
	healthCfg.Store = storePinger(ctx, cfg, log)

	srv := proxy.NewServer(&proxy.ServerConfig{
		Port:          cfg.Proxy.Port,
		Logger:        log,
		Signer:        signer,
		Limiter:       proxy.NewAbuseLimiter(proxy.DefaultAbuseLimiterConfig()),
		HealthChecker: health.NewChecker(healthCfg),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown server", "error", err)
	}
}

// storePinger builds the asset store probe for the deep health check. The
// redirect targets live in the store, so its reachability is the one
// dependency worth verifying here. Store configuration is optional for this
// binary; without it the probe is skipped.
func storePinger(ctx context.Context, cfg *config.Config, log *slog.Logger) health.StorePinger {
	switch cfg.Store.Backend {
	case "github":
		if cfg.Store.GitHubToken != "" && cfg.Store.GitHubRepo != "" && cfg.Store.ReleaseTag != "" {
			return store.NewGitHub(cfg.Store.GitHubToken, cfg.Store.GitHubRepo, cfg.Store.ReleaseTag)
		}
	case "s3":
		if cfg.Store.S3Bucket != "" {
			s, err := store.NewS3(ctx, cfg.Store.S3Bucket, cfg.Store.AWSRegion)
			if err != nil {
				log.Warn("Failed to initialize store probe for health checks", "error", err)
				return nil
			}
			return s
		}
	}
	log.Info("Asset store not configured, deep health check skips the store probe")
	return nil
}
