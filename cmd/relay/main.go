package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmarwaha/release-relay/internal/config"
	"github.com/dmarwaha/release-relay/internal/fetch"
	"github.com/dmarwaha/release-relay/internal/hls"
	"github.com/dmarwaha/release-relay/internal/observability"
	"github.com/dmarwaha/release-relay/internal/pipeline"
	"github.com/dmarwaha/release-relay/internal/proxy"
	"github.com/dmarwaha/release-relay/internal/queue"
	"github.com/dmarwaha/release-relay/internal/store"
	"github.com/dmarwaha/release-relay/internal/youtube"
)

// Timeouts for startup and shutdown phases.
const (
	StorePingTimeout = 15 * time.Second
	InstallTimeout   = 2 * time.Minute
	ShutdownTimeout  = 5 * time.Second
)

func main() {
	log := observability.NewLogger()
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, relying on system ENV variables")
	}

	cfg, err := config.LoadRelay()
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer := observability.InitTracer(context.Background(), "release-relay", cfg.Observability.OTLPEndpoint)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assetStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("Failed to initialize asset store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, StorePingTimeout)
	if err := assetStore.Ping(pingCtx); err != nil {
		cancel()
		log.Error("Asset store is unreachable", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	cancel()

	ytFetcher := youtube.New(cfg.Relay.StagingDir, log)
	installCtx, cancel := context.WithTimeout(ctx, InstallTimeout)
	if err := youtube.Install(installCtx); err != nil {
		log.Warn("yt-dlp install failed, YouTube sources disabled", "error", err)
		ytFetcher = nil
	}
	cancel()

	fetcher := fetch.New(&fetch.Config{
		StagingDir: cfg.Relay.StagingDir,
		MaxSize:    cfg.Relay.MaxFileSize,
		HLS:        hls.New(cfg.Relay.StagingDir, log),
		YouTube:    delegated(ytFetcher),
	})

	var links pipeline.LinkWrapper
	if cfg.Proxy.Enabled {
		signer, err := proxy.NewSigner([]byte(cfg.Proxy.JWTSecret), cfg.Proxy.Domain)
		if err != nil {
			log.Error("Failed to initialize link signer", "error", err)
			os.Exit(1)
		}
		links = signer
	}

	p := pipeline.New(&pipeline.Config{
		Fetcher:    fetcher,
		Store:      assetStore,
		Links:      links,
		StagingDir: cfg.Relay.StagingDir,
		Log:        log,
	})

	coord := queue.NewCoordinator(p, log)
	p.SetEnqueuer(coord)

	metricsServer := startMetricsServer(cfg.Relay.MetricsPort, log)

	log.Info("Relay ready",
		"store", cfg.Store.Backend,
		"stagingDir", cfg.Relay.StagingDir,
		"maxFileSize", cfg.Relay.MaxFileSize,
		"proxyLinks", cfg.Proxy.Enabled,
		"admins", len(cfg.Relay.AdminUserIDs))

	// The chat transport submits items through coord.Enqueue and admin
	// commands through coord.Stop/Restart. Block until a signal arrives,
	// then stop accepting work and let in-flight transfers unwind.
	<-ctx.Done()

	log.Info("Shutting down relay...")
	coord.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown metrics server", "error", err)
	}
}

// buildStore selects the asset store backend from configuration.
func buildStore(ctx context.Context, cfg *config.Config) (store.AssetStore, error) {
	switch cfg.Store.Backend {
	case "github":
		return store.NewGitHub(cfg.Store.GitHubToken, cfg.Store.GitHubRepo, cfg.Store.ReleaseTag), nil
	case "s3":
		s, err := store.NewS3(ctx, cfg.Store.S3Bucket, cfg.Store.AWSRegion)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// delegated converts a possibly-nil concrete fetcher into the interface
// without producing a non-nil interface around a nil pointer.
func delegated(f *youtube.Fetcher) fetch.StreamFetcher {
	if f == nil {
		return nil
	}
	return f
}

func startMetricsServer(port int, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
			log.Error("Failed to write health response", "error", err)
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting metrics server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error", "error", err)
		}
	}()

	return srv
}
