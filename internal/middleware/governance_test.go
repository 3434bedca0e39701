package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/cost"
	"github.com/vnmchuo/interview-gateway/internal/tier"
	"github.com/vnmchuo/interview-gateway/internal/usage"
	"github.com/vnmchuo/interview-gateway/pkg/ratelimit"
)

type stubVerifier map[string]string

func (s stubVerifier) Verify(token string) (string, error) {
	if sub, ok := s[token]; ok {
		return sub, nil
	}
	return "", auth.ErrInvalidToken
}

type harness struct {
	profiles *auth.MemoryProfileStore
	usage    *usage.Tracker
	cost     *cost.Tracker
	chain    http.Handler
	reached  int
	recorder *usage.Recorder
	level    cost.Level
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{profiles: auth.NewMemoryProfileStore()}
	ctx := context.Background()
	_ = h.profiles.SetTier(ctx, "free-user", "free")
	_ = h.profiles.SetTier(ctx, "pro-user", "pro")
	_ = h.profiles.SetTier(ctx, "premium-user", "premium")

	verifier := stubVerifier{"free-token": "free-user", "pro-token": "pro-user", "premium-token": "premium-user"}
	catalog := tier.DefaultCatalog()
	logger := zap.NewNop()

	h.usage = usage.NewTracker(usage.NewMemoryStore())
	// One dollar per AI token against a 100 dollar budget.
	rates := cost.Rates{AIToken: decimal.NewFromInt(1), TTSChar: decimal.NewFromInt(1), STTMinute: decimal.NewFromInt(1)}
	h.cost = cost.NewTracker(cost.NewMemoryStore(), rates, decimal.NewFromInt(100), logger)

	g := Governance{
		Auth:      auth.NewMiddleware(auth.NewResolver(verifier, h.profiles, nil, logger), logger),
		RateLimit: RateLimit(ratelimit.NewLimiter(ratelimit.NewMemoryStore()), catalog, logger),
		UsageCap:  UsageCap(h.usage, catalog, logger),
		CostGate:  CostGate(h.cost, logger),
	}
	h.chain = g.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.reached++
		h.recorder = usage.RecorderFrom(r.Context())
		h.level = cost.LevelFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h
}

func (h *harness) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.chain.ServeHTTP(rr, req)
	return rr
}

func (h *harness) spend(t *testing.T, usd int64) {
	t.Helper()
	if err := h.cost.RecordCost(context.Background(), cost.CategoryAI, decimal.NewFromInt(usd)); err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	return body
}

func TestChain_AnonymousPassesWithRecorder(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/api/interview/parse", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if h.recorder == nil {
		t.Error("Expected a usage recorder on the context")
	}
	if h.level != cost.LevelNone {
		t.Errorf("Expected level none, got %s", h.level)
	}
}

func TestChain_InvalidTokenStopsChain(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/api/interview/parse", "forged")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
	if h.reached != 0 {
		t.Error("Handler must not run after auth failure")
	}
}

func TestChain_RateLimitPerTier(t *testing.T) {
	tests := []struct {
		token string
		limit int
	}{
		{"free-token", 15},
		{"pro-token", 30},
		{"premium-token", 60},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			h := newHarness(t)
			for i := 0; i < tt.limit; i++ {
				if rr := h.do(http.MethodPost, "/api/interview/evaluate", tt.token); rr.Code != http.StatusOK {
					t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
				}
			}

			rr := h.do(http.MethodPost, "/api/interview/evaluate", tt.token)
			if rr.Code != http.StatusTooManyRequests {
				t.Fatalf("Expected 429, got %d", rr.Code)
			}
			body := decode(t, rr)
			if body["error"] != "Too many requests" || body["message"] != "Please slow down. Try again in a moment." {
				t.Errorf("Unexpected body %v", body)
			}
			if retry, ok := body["retryAfter"].(float64); !ok || retry < 1 {
				t.Errorf("Expected positive retryAfter, got %v", body["retryAfter"])
			}
			if rr.Header().Get("Retry-After") == "" {
				t.Error("Expected Retry-After header")
			}
			if h.reached != tt.limit {
				t.Errorf("Expected handler reached %d times, got %d", tt.limit, h.reached)
			}
		})
	}
}

func TestChain_DailyAICap(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/api/interview/questions", "free-token")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if err := h.recorder.Record(context.Background(), 2000, 0); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	rr = h.do(http.MethodPost, "/api/interview/questions", "free-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["error"] != "Daily AI usage limit reached" {
		t.Errorf("Unexpected error %v", body["error"])
	}
	u := body["usage"].(map[string]any)
	if u["current"].(float64) != 2000 || u["limit"].(float64) != 2000 {
		t.Errorf("Unexpected usage %v", u)
	}
}

func TestChain_DailyTTSCapOnlyOnSynthesis(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/api/voice/tts", "free-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for free-tier tts, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["error"] != "Daily voice limit reached" || body["message"] != "Voice feature limit reached for today." {
		t.Errorf("Unexpected body %v", body)
	}

	if rr := h.do(http.MethodPost, "/api/voice/stt", "free-token"); rr.Code != http.StatusOK {
		t.Errorf("Expected stt to pass the tts cap, got %d", rr.Code)
	}
}

func TestChain_EmergencyPausesFreeTierOnly(t *testing.T) {
	h := newHarness(t)
	h.spend(t, 101)

	rr := h.do(http.MethodPost, "/api/interview/parse", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 for anonymous free tier, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["error"] != "Service temporarily limited" {
		t.Errorf("Unexpected body %v", body)
	}

	if rr := h.do(http.MethodPost, "/api/interview/parse", "premium-token"); rr.Code != http.StatusOK {
		t.Errorf("Expected premium non-voice request to pass, got %d", rr.Code)
	}
	if h.level != cost.LevelEmergency {
		t.Errorf("Expected emergency level on context, got %s", h.level)
	}
}

func TestChain_DegradedClosesVoiceForAllTiers(t *testing.T) {
	h := newHarness(t)
	h.spend(t, 96)

	for _, token := range []string{"pro-token", "premium-token"} {
		for _, path := range []string{"/api/voice/tts", "/api/voice/stt"} {
			rr := h.do(http.MethodPost, path, token)
			if rr.Code != http.StatusServiceUnavailable {
				t.Fatalf("%s %s: expected 503, got %d", token, path, rr.Code)
			}
			body := decode(t, rr)
			if body["error"] != "Voice temporarily unavailable" {
				t.Errorf("Unexpected body %v", body)
			}
		}
	}

	if rr := h.do(http.MethodPost, "/api/interview/report", "free-token"); rr.Code != http.StatusOK {
		t.Errorf("Expected non-voice route unaffected, got %d", rr.Code)
	}
	if h.level != cost.LevelDegraded {
		t.Errorf("Expected degraded level on context, got %s", h.level)
	}
}

func TestChain_WarningDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.spend(t, 81)

	if rr := h.do(http.MethodPost, "/api/voice/tts", "premium-token"); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 at warning level, got %d", rr.Code)
	}
	if h.level != cost.LevelWarning {
		t.Errorf("Expected warning level, got %s", h.level)
	}
}

func TestChain_OrderRateLimitBeforeUsage(t *testing.T) {
	h := newHarness(t)
	h.usage.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local) })

	// Exhaust the AI cap, then the rate window: the 429 must win over the 403.
	rr := h.do(http.MethodPost, "/api/interview/evaluate", "free-token")
	_ = h.recorder.Record(context.Background(), 5000, 0)
	for i := 0; i < 14; i++ {
		rr = h.do(http.MethodPost, "/api/interview/evaluate", "free-token")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("Expected 403 while under rate limit, got %d", rr.Code)
		}
	}
	rr = h.do(http.MethodPost, "/api/interview/evaluate", "free-token")
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the window is exhausted, got %d", rr.Code)
	}
}
