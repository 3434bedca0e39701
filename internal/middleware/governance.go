// Package middleware holds the request-governance chain that runs after
// authentication: rate limiting, daily usage caps and the cost gate.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/cost"
	"github.com/vnmchuo/interview-gateway/internal/tier"
	"github.com/vnmchuo/interview-gateway/internal/usage"
	"github.com/vnmchuo/interview-gateway/pkg/ratelimit"
)

const (
	voicePrefix    = "/api/voice"
	voiceTTSPrefix = "/api/voice/tts"
)

type Middleware func(next http.Handler) http.Handler

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RateLimit consumes one request from the caller's tier-scoped window.
// Store failures are logged and the request is let through.
func RateLimit(limiter *ratelimit.Limiter, catalog *tier.Catalog, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFrom(r.Context())
			profile := catalog.Get(string(id.Tier))

			d, err := limiter.Allow(r.Context(), string(id.Tier), id.UserID, profile.RequestsPerMinute)
			if err != nil {
				logger.Error("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				retry := d.RetryAfterSeconds()
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":      "Too many requests",
					"message":    "Please slow down. Try again in a moment.",
					"retryAfter": retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UsageCap rejects callers at their daily cap and hands the downstream handler
// a recorder for what it consumes.
func UsageCap(tracker *usage.Tracker, catalog *tier.Catalog, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFrom(r.Context())
			profile := catalog.Get(string(id.Tier))
			synthesis := strings.HasPrefix(r.URL.Path, voiceTTSPrefix)

			rec, err := tracker.Check(r.Context(), id.UserID, profile, synthesis)
			var exceeded *usage.ExceededError
			switch {
			case errors.As(err, &exceeded):
				writeUsageExceeded(w, exceeded)
				return
			case err != nil:
				logger.Error("usage tracker unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(usage.WithRecorder(r.Context(), rec)))
		})
	}
}

func writeUsageExceeded(w http.ResponseWriter, e *usage.ExceededError) {
	body := map[string]any{
		"usage": map[string]int64{"current": e.Current, "limit": e.Limit},
	}
	if e.Kind == usage.KindTTS {
		body["error"] = "Daily voice limit reached"
		body["message"] = "Voice feature limit reached for today."
	} else {
		body["error"] = "Daily AI usage limit reached"
		body["message"] = "You've hit your daily limit. Upgrade your plan or try again tomorrow."
	}
	writeJSON(w, http.StatusForbidden, body)
}

// CostGate applies the global degradation level: at emergency free-tier
// traffic is paused, at degraded or worse voice routes are closed. The level
// is attached to the request context for handlers.
func CostGate(tracker *cost.Tracker, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			level, err := tracker.DegradationLevel(r.Context())
			if err != nil {
				logger.Error("cost tracker unavailable", zap.Error(err))
				level = cost.LevelNone
			}
			id := auth.IdentityFrom(r.Context())

			if level >= cost.LevelEmergency && id.Tier == tier.Free {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error":   "Service temporarily limited",
					"message": "Free tier is temporarily paused. Please try again later or upgrade.",
				})
				return
			}
			if level >= cost.LevelDegraded && strings.HasPrefix(r.URL.Path, voicePrefix) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error":   "Voice temporarily unavailable",
					"message": "Voice features are temporarily disabled. Text mode is still available.",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(cost.WithLevel(r.Context(), level)))
		})
	}
}

// Governance composes the full chain in its fixed order.
type Governance struct {
	Auth      auth.Middleware
	RateLimit Middleware
	UsageCap  Middleware
	CostGate  Middleware
}

func (g Governance) Handler(next http.Handler) http.Handler {
	return g.Auth(g.RateLimit(g.UsageCap(g.CostGate(next))))
}
