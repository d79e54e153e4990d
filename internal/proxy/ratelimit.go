package proxy

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Abuse limiting configuration. An IP that keeps presenting invalid link
// tokens is cut off for the rest of the window.
const (
	DefaultMaxInvalidTokens = 10
	DefaultAbuseWindow      = 15 * time.Minute
	DefaultCleanupInterval  = 5 * time.Minute
)

// AbuseLimiterConfig holds abuse limiter configuration.
type AbuseLimiterConfig struct {
	MaxInvalidTokens int
	Window           time.Duration
	CleanupInterval  time.Duration
}

// DefaultAbuseLimiterConfig returns the default abuse limiter configuration.
func DefaultAbuseLimiterConfig() AbuseLimiterConfig {
	return AbuseLimiterConfig{
		MaxInvalidTokens: DefaultMaxInvalidTokens,
		Window:           DefaultAbuseWindow,
		CleanupInterval:  DefaultCleanupInterval,
	}
}

// attemptInfo tracks invalid-token attempts for one IP.
type attemptInfo struct {
	count     int
	firstSeen time.Time
}

// AbuseLimiter tracks invalid link tokens by client IP.
type AbuseLimiter struct {
	mu       sync.RWMutex
	attempts map[string]*attemptInfo
	config   AbuseLimiterConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAbuseLimiter creates an AbuseLimiter and starts its cleanup loop.
func NewAbuseLimiter(config AbuseLimiterConfig) *AbuseLimiter {
	al := &AbuseLimiter{
		attempts: make(map[string]*attemptInfo),
		config:   config,
		stopCh:   make(chan struct{}),
	}

	go al.cleanup()

	return al
}

func (al *AbuseLimiter) cleanup() {
	ticker := time.NewTicker(al.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-al.stopCh:
			return
		case <-ticker.C:
			al.removeExpired()
		}
	}
}

func (al *AbuseLimiter) removeExpired() {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := time.Now()
	for ip, info := range al.attempts {
		if now.Sub(info.firstSeen) > al.config.Window {
			delete(al.attempts, ip)
		}
	}
}

// Stop stops the cleanup goroutine.
func (al *AbuseLimiter) Stop() {
	al.stopOnce.Do(func() {
		close(al.stopCh)
	})
}

// IsLimited returns true if the IP has exceeded the invalid-token budget.
func (al *AbuseLimiter) IsLimited(ip string) bool {
	al.mu.RLock()
	defer al.mu.RUnlock()

	info, exists := al.attempts[ip]
	if !exists {
		return false
	}
	if time.Since(info.firstSeen) > al.config.Window {
		return false
	}
	return info.count >= al.config.MaxInvalidTokens
}

// RecordInvalid records an invalid link token presented by the IP.
func (al *AbuseLimiter) RecordInvalid(ip string) {
	al.mu.Lock()
	defer al.mu.Unlock()

	info, exists := al.attempts[ip]
	if !exists || time.Since(info.firstSeen) > al.config.Window {
		al.attempts[ip] = &attemptInfo{
			count:     1,
			firstSeen: time.Now(),
		}
		return
	}

	info.count++
}

// Reset clears the recorded attempts for the IP.
func (al *AbuseLimiter) Reset(ip string) {
	al.mu.Lock()
	defer al.mu.Unlock()
	delete(al.attempts, ip)
}

// ClientIP extracts the client IP from the request, preferring the
// forwarding headers set by a load balancer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
