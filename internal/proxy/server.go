package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmarwaha/release-relay/internal/health"
	"github.com/dmarwaha/release-relay/internal/metrics"
)

// Server configuration constants
const (
	ReadTimeout       = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	WriteTimeout      = 30 * time.Second
	IdleTimeout       = 120 * time.Second
	MaxHeaderBytes    = 1 << 20 // 1 MB
)

// Server is the public redirect endpoint for signed download links.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
	signer     *Signer
	limiter    *AbuseLimiter
}

// ServerConfig holds dependencies for the server.
type ServerConfig struct {
	Port          string
	Logger        *slog.Logger
	Signer        *Signer
	Limiter       *AbuseLimiter
	HealthChecker *health.Checker
}

// NewServer creates the redirect server.
func NewServer(cfg *ServerConfig) *Server {
	s := &Server{
		log:     cfg.Logger,
		signer:  cfg.Signer,
		limiter: cfg.Limiter,
	}

	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("/health", cfg.HealthChecker.Handler())
	mux.HandleFunc("/health/deep", cfg.HealthChecker.DeepHandler())
	mux.HandleFunc("/file/", s.redirectHandler)

	// Metrics endpoint (internal only)
	mux.Handle("/metrics", internalOnlyMiddleware(promhttp.Handler()))

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Starting link proxy server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down link proxy server...")

	if s.limiter != nil {
		s.limiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the server's handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// redirectHandler resolves /file/<name>/<token> and 302-redirects to the
// asset's store URL. Invalid tokens answer 404 so the endpoint does not
// reveal which links exist.
func (s *Server) redirectHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.ProxyRequestDuration.Observe(time.Since(start).Seconds())
	}()

	rest := strings.TrimPrefix(r.URL.Path, "/file/")
	name, token, found := strings.Cut(rest, "/")
	if !found || name == "" || token == "" {
		metrics.ProxyRedirects.WithLabelValues("malformed").Inc()
		http.NotFound(w, r)
		return
	}

	ip := ClientIP(r)
	if s.limiter.IsLimited(ip) {
		metrics.ProxyRedirects.WithLabelValues("rate_limited").Inc()
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	claims, err := s.signer.Resolve(token)
	if err != nil {
		s.limiter.RecordInvalid(ip)
		metrics.ProxyRedirects.WithLabelValues("invalid").Inc()
		s.log.WarnContext(r.Context(), "Invalid link token",
			"ip", ip,
			"name", name)
		http.NotFound(w, r)
		return
	}

	s.limiter.Reset(ip)
	metrics.ProxyRedirects.WithLabelValues("redirect").Inc()
	http.Redirect(w, r, claims.AssetURL, http.StatusFound)
}

// Private networks for internal-only middleware
var privateNetworks = []net.IPNet{
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
}

// internalOnlyMiddleware restricts access to internal networks.
func internalOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deny if X-Forwarded-For is present (came through load balancer)
		if r.Header.Get("X-Forwarded-For") != "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if isInternalRequest(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// isInternalRequest checks if the request is from an internal network.
func isInternalRequest(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}
