// Package api serves the interview, voice and coaching routes behind the
// governance chain.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/coaching"
	"github.com/vnmchuo/interview-gateway/internal/cost"
	"github.com/vnmchuo/interview-gateway/internal/interview"
	"github.com/vnmchuo/interview-gateway/internal/provider"
	"github.com/vnmchuo/interview-gateway/internal/scraper"
	"github.com/vnmchuo/interview-gateway/internal/tier"
	"github.com/vnmchuo/interview-gateway/internal/usage"
)

const (
	maxJSONBody  = 50 << 10
	maxAudioBody = 25 << 20
)

var secondsPerMinute = decimal.NewFromInt(60)

// Providers selects the backends serving a tier.
type Providers interface {
	AI(tierName string) (provider.AIProvider, error)
	Voice(tierName string) (provider.VoiceProvider, error)
}

type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (string, error)
}

type Deps struct {
	Providers  Providers
	Scraper    Scraper
	Interviews interview.Store
	Coaching   *coaching.Service
	Usage      *usage.Tracker
	Cost       *cost.Tracker
	Catalog    *tier.Catalog
	Tracer     trace.Tracer
	Logger     *zap.Logger
}

type Handler struct {
	providers  Providers
	scraper    Scraper
	interviews interview.Store
	coaching   *coaching.Service
	usage      *usage.Tracker
	cost       *cost.Tracker
	catalog    *tier.Catalog
	tracer     trace.Tracer
	logger     *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		providers:  d.Providers,
		scraper:    d.Scraper,
		interviews: d.Interviews,
		coaching:   d.Coaching,
		usage:      d.Usage,
		cost:       d.Cost,
		catalog:    d.Catalog,
		tracer:     d.Tracer,
		logger:     d.Logger,
	}
}

// Mount registers every governed route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/interview", func(r chi.Router) {
		r.Post("/parse", h.HandleParse)
		r.Post("/questions", h.HandleQuestions)
		r.Post("/evaluate", h.HandleEvaluate)
		r.Post("/report", h.HandleReport)
		r.Get("/history", h.HandleHistory)
		r.Get("/{id}", h.HandleInterview)
	})
	r.Route("/voice", func(r chi.Router) {
		r.Post("/tts", h.HandleTTS)
		r.Post("/stt", h.HandleSTT)
	})
	r.Route("/coaching", func(r chi.Router) {
		r.Use(requirePremium)
		r.Post("/start", h.HandleCoachingStart)
		r.Get("/active", h.HandleCoachingActive)
		r.Get("/program/{id}", h.HandleCoachingProgram)
		r.Get("/day/{dayId}", h.HandleCoachingDay)
		r.Post("/day/{dayId}/start", h.HandleCoachingDayStart)
		r.Post("/day/{dayId}/attempt", h.HandleCoachingAttempt)
		r.Post("/day/{dayId}/complete", h.HandleCoachingDayComplete)
	})
	r.Get("/usage", h.HandleUsage)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded JSON body into v, answering 400 or 413 itself
// when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// begin opens the route span and attaches a fresh usage meter.
func (h *Handler) begin(r *http.Request, name string) (context.Context, trace.Span) {
	id := auth.IdentityFrom(r.Context())
	ctx, span := h.tracer.Start(r.Context(), name)
	span.SetAttributes(
		attribute.String("user_id", id.UserID),
		attribute.String("tier", string(id.Tier)),
		attribute.String("degradation_level", cost.LevelFrom(ctx).String()),
	)
	return provider.WithMeter(ctx, provider.NewMeter()), span
}

func (h *Handler) aiFor(ctx context.Context, span trace.Span) (provider.AIProvider, error) {
	ai, err := h.providers.AI(string(auth.IdentityFrom(ctx).Tier))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provider", ai.Name()))
	return ai, nil
}

func (h *Handler) voiceFor(ctx context.Context, span trace.Span) (provider.VoiceProvider, error) {
	v, err := h.providers.Voice(string(auth.IdentityFrom(ctx).Tier))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provider", v.Name()))
	return v, nil
}

// settle moves what the request's meter collected into the user's daily
// usage and the monthly cost ledger. It runs after every provider call,
// failed ones included, and survives client disconnects.
func (h *Handler) settle(ctx context.Context) {
	u := provider.MeterFrom(ctx).Drain()
	ctx = context.WithoutCancel(ctx)

	if rec := usage.RecorderFrom(ctx); rec != nil {
		if err := rec.Record(ctx, u.AITokens, u.TTSChars); err != nil {
			h.logger.Error("failed to record usage", zap.Error(err))
		}
	}

	charges := []struct {
		cat   cost.Category
		units decimal.Decimal
	}{
		{cost.CategoryAI, decimal.NewFromInt(u.AITokens)},
		{cost.CategoryTTS, decimal.NewFromInt(u.TTSChars)},
		{cost.CategorySTT, decimal.NewFromFloat(u.STTSeconds).Div(secondsPerMinute)},
	}
	for _, c := range charges {
		if err := h.cost.RecordCost(ctx, c.cat, c.units); err != nil {
			h.logger.Error("failed to record cost", zap.String("category", string(c.cat)), zap.Error(err))
		}
	}
}

// fail maps a route error onto its HTTP status. Unknown errors are logged
// and answered with fallback.
func (h *Handler) fail(w http.ResponseWriter, span trace.Span, err error, fallback string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var rateLimited *provider.RateLimitError
	var blocked *scraper.BlockedError
	switch {
	case errors.As(err, &rateLimited):
		writeError(w, http.StatusTooManyRequests, rateLimited.UserMessage())
	case errors.Is(err, provider.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "The AI provider is busy. Please try again shortly.")
	case errors.As(err, &blocked):
		writeError(w, http.StatusUnprocessableEntity, blocked.UserMessage())
	case errors.Is(err, scraper.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "Invalid URL")
	case errors.Is(err, provider.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Provider temporarily unavailable")
	case errors.Is(err, coaching.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, coaching.ErrNotFound), errors.Is(err, interview.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// requireUser answers 401 for anonymous callers.
func requireUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id := auth.IdentityFrom(r.Context())
	if id.IsAnonymous() {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return id, false
	}
	return id, true
}

func requirePremium(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUser(w, r)
		if !ok {
			return
		}
		if id.Tier != tier.Premium {
			writeError(w, http.StatusForbidden, "Coaching is a Premium feature")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health is the unauthenticated liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
