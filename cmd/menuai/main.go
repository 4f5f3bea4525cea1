package main

import (
	"context"
	"log"
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

	"github.com/waiterai/menuai/config"
	"github.com/waiterai/menuai/internal/api"
	"github.com/waiterai/menuai/internal/auth"
	"github.com/waiterai/menuai/internal/cost"
	"github.com/waiterai/menuai/internal/generation"
	"github.com/waiterai/menuai/internal/ledger"
	"github.com/waiterai/menuai/internal/provider"
	"github.com/waiterai/menuai/internal/provider/deepseek"
	"github.com/waiterai/menuai/internal/provider/gemini"
	"github.com/waiterai/menuai/internal/provider/openai"
	"github.com/waiterai/menuai/internal/quota"
	"github.com/waiterai/menuai/internal/seeder"
	"github.com/waiterai/menuai/internal/telemetry"
	"github.com/waiterai/menuai/internal/tenant"
	"github.com/waiterai/menuai/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("menuai", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)

	// 6. Stores: append-only ledger (written off the request path), atomic
	// usage counters, tenant config
	ledgerStore := ledger.NewPostgresStore(pool)
	ledgerWriter := ledger.NewAsyncWriter(ledgerStore, 256)
	ledgerWriter.Start()
	defer ledgerWriter.Close()

	counters := ledger.NewRedisCounter(rdb)
	tenantStore := tenant.NewPostgresStore(pool)

	// 7. Edge burst limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)

	// 8. Providers, in default fallback order
	providers := []provider.Provider{
		deepseek.New(cfg.DeepSeekAPIKey),
		gemini.New(cfg.GeminiAPIKey),
		openai.New(cfg.OpenAIAPIKey),
	}

	// 9. Orchestrator
	tracer := otel.GetTracerProvider().Tracer("menuai")
	orchestrator := generation.New(generation.Config{
		Providers:      providers,
		Priority:       cfg.ProviderPriority,
		Policy:         quota.DefaultPolicy(),
		Counters:       counters,
		Records:        ledgerWriter,
		Tenants:        tenantStore,
		Costs:          cost.DefaultTable(),
		Tracer:         tracer,
		AttemptTimeout: cfg.ProviderTimeout,
	})

	// 10. Handlers
	handler := api.NewHandler(orchestrator, ledgerStore, limiter, tracer, cfg.MenuBaseURL)

	// 11. Seed test API key if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore)
	}

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"menuai"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/menu/descriptions", handler.HandleDescription)
		r.Post("/v1/menu/translations", handler.HandleTranslation)
		r.Post("/v1/chat", handler.HandleChat)
		r.Get("/v1/usage", handler.HandleUsage)
		r.Get("/v1/qr", handler.HandleMenuQR)
	})

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("MenuAI service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
