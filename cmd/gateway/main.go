package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/config"
	"github.com/vnmchuo/interview-gateway/internal/api"
	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/coaching"
	"github.com/vnmchuo/interview-gateway/internal/cost"
	"github.com/vnmchuo/interview-gateway/internal/interview"
	"github.com/vnmchuo/interview-gateway/internal/logging"
	"github.com/vnmchuo/interview-gateway/internal/middleware"
	"github.com/vnmchuo/interview-gateway/internal/provider"
	"github.com/vnmchuo/interview-gateway/internal/provider/anthropic"
	"github.com/vnmchuo/interview-gateway/internal/provider/elevenlabs"
	"github.com/vnmchuo/interview-gateway/internal/provider/gemini"
	"github.com/vnmchuo/interview-gateway/internal/provider/ollama"
	"github.com/vnmchuo/interview-gateway/internal/provider/openai"
	"github.com/vnmchuo/interview-gateway/internal/router"
	"github.com/vnmchuo/interview-gateway/internal/scraper"
	"github.com/vnmchuo/interview-gateway/internal/seeder"
	"github.com/vnmchuo/interview-gateway/internal/telemetry"
	"github.com/vnmchuo/interview-gateway/internal/tier"
	"github.com/vnmchuo/interview-gateway/internal/usage"
	"github.com/vnmchuo/interview-gateway/pkg/ratelimit"
)

const serviceName = "interview-gateway"

type profileStore interface {
	auth.ProfileStore
	seeder.TierSetter
}

// stores groups the persistence backends chosen at startup.
type stores struct {
	profiles   profileStore
	usage      usage.Store
	interviews interview.Store
	coaching   coaching.Store
	ratelimit  ratelimit.Store
	cost       cost.Store
}

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer()

	ctx := context.Background()
	st := stores{
		profiles:   auth.NewMemoryProfileStore(),
		usage:      usage.NewMemoryStore(),
		interviews: interview.NewMemoryStore(),
		coaching:   coaching.NewMemoryStore(),
		ratelimit:  ratelimit.NewMemoryStore(),
		cost:       cost.NewMemoryStore(),
	}

	// 3. Connect PostgreSQL
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		logger.Info("postgres connected")

		st.profiles = auth.NewPostgresProfileStore(pool)
		st.usage = usage.NewPostgresStore(pool)
		st.interviews = interview.NewPostgresStore(pool)
		st.coaching = coaching.NewPostgresStore(pool)
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory stores")
	}

	// 4. Connect Redis
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to ping redis", zap.Error(err))
		}
		logger.Info("redis connected")

		st.ratelimit = ratelimit.NewRedisStore(rdb)
		st.cost = cost.NewRedisStore(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set, rate limits and cost ledger are per-process")
	}

	// 5. Load tiers
	catalog := tier.DefaultCatalog()
	if cfg.TierConfigPath != "" {
		if catalog, err = tier.LoadCatalog(cfg.TierConfigPath); err != nil {
			logger.Fatal("failed to load tier config", zap.Error(err))
		}
	}

	// 6. Init auth
	var verifier auth.TokenVerifier
	if cfg.JWTSecret != "" || cfg.JWKSURL != "" {
		v, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWKSURL)
		if err != nil {
			logger.Fatal("failed to init token verifier", zap.Error(err))
		}
		verifier = v
	} else {
		logger.Warn("SUPABASE_JWT_SECRET and SUPABASE_JWKS_URL not set, only anonymous requests are accepted")
	}
	resolver := auth.NewResolver(verifier, st.profiles, rdb, logger)

	// 7. Init governance
	usageTracker := usage.NewTracker(st.usage)
	costTracker := cost.NewTracker(st.cost, cost.Rates{
		AIToken:   cfg.CostPerAIToken,
		TTSChar:   cfg.CostPerTTSChar,
		STTMinute: cfg.CostPerSTTMinute,
	}, cfg.MonthlyBudget, logger)
	gov := middleware.Governance{
		Auth:      auth.NewMiddleware(resolver, logger),
		RateLimit: middleware.RateLimit(ratelimit.NewLimiter(st.ratelimit), catalog, logger),
		UsageCap:  middleware.UsageCap(usageTracker, catalog, logger),
		CostGate:  middleware.CostGate(costTracker, logger),
	}

	// 8. Init providers
	providers := router.NewRouter(catalog, cfg.AIProvider, logger)
	providers.RegisterAI(tier.BackendAnthropic, func() provider.AIProvider {
		return anthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	})
	providers.RegisterAI(tier.BackendGemini, func() provider.AIProvider {
		return gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	})
	providers.RegisterAI(tier.BackendOllama, func() provider.AIProvider {
		return ollama.New(cfg.OllamaURL, cfg.OllamaModel, logger)
	})
	providers.RegisterVoice(tier.BackendGemini, func() provider.VoiceProvider {
		return gemini.NewVoice(cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	})
	providers.RegisterVoice(tier.BackendElevenLabs, func() provider.VoiceProvider {
		return elevenlabs.New(cfg.ElevenLabsAPIKey, openai.NewWhisper(cfg.OpenAIAPIKey))
	})

	// 9. Init handler
	handler := api.NewHandler(api.Deps{
		Providers:  providers,
		Scraper:    scraper.New(logger),
		Interviews: st.interviews,
		Coaching:   coaching.NewService(st.coaching, st.interviews, logger),
		Usage:      usageTracker,
		Cost:       costTracker,
		Catalog:    catalog,
		Tracer:     otel.GetTracerProvider().Tracer(serviceName),
		Logger:     logger,
	})

	// 10. Seed dev users if RUN_SEED=true
	if cfg.RunSeed {
		seeder.SeedDevUsers(ctx, st.profiles, cfg.JWTSecret, logger)
	}

	// 11. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/health", api.Health)
	r.With(api.AdminOnly(cfg.AdminToken)).Get("/internal/cost", handler.HandleCostStatus)

	// Governed routes
	r.Route("/api", func(r chi.Router) {
		r.Use(gov.Handler)
		handler.Mount(r)
	})

	// 12. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("interview gateway starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
