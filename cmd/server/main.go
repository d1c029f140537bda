package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/courtside/matchbook/internal/api"
	"github.com/courtside/matchbook/internal/bot"
	"github.com/courtside/matchbook/internal/market"
	"github.com/courtside/matchbook/internal/metrics"
	"github.com/courtside/matchbook/internal/oracle"
	"github.com/courtside/matchbook/internal/schedule"
	"github.com/courtside/matchbook/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Match result oracle ---
	var orc oracle.MatchOracle
	if oracleURL := os.Getenv("ORACLE_URL"); oracleURL != "" {
		orc = oracle.NewHTTPOracle(oracleURL)
		slog.Info("result oracle configured", "url", oracleURL)
	} else {
		slog.Warn("ORACLE_URL not set, settlement will report results unavailable")
		orc = oracle.NewStatic()
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Engine and API service ---
	settleDelay := envDuration("SETTLE_DELAY", market.DefaultSettleDelay)
	eng := market.NewEngine(st, orc, wsHub, settleDelay)
	apiSvc := api.NewService(st, eng)

	// --- Background schedule ---
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	runner := schedule.New(jobCtx)
	mustAdd := func(name string, err error) {
		if err != nil {
			slog.Error("invalid cron spec", "job", name, "err", err)
			os.Exit(1)
		}
	}
	mustAdd("stop-orders", runner.AddStopOrderSweep(eng, envOr("STOP_SWEEP_SPEC", "@every 10m")))
	mustAdd("settlement", runner.AddSettlementSweep(eng, envOr("SETTLE_SWEEP_SPEC", "@every 30m")))

	if predictorURL := os.Getenv("PREDICTOR_URL"); predictorURL != "" {
		botUser := envOr("BOT_USER", "house-bot")
		trader := bot.NewTrader(st, eng, bot.NewHTTPEstimator(predictorURL), botUser)
		mustAdd("trader", runner.AddTraderPass(trader, envOr("BOT_SWEEP_SPEC", "@every 10m")))
		slog.Info("automated trader enabled", "user", botUser)
	}

	runner.Start()
	defer runner.Stop()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"matchbook"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price updates.
		r.Get("/ws", wsHub.HandleWS)

		// Matches and their market events.
		r.Get("/matches", apiSvc.ListMatches)
		r.Post("/matches", apiSvc.CreateMatch)
		r.Get("/events", apiSvc.ListEvents)
		r.Get("/events/{eventID}", apiSvc.GetEvent)
		r.Get("/events/{eventID}/quote", apiSvc.GetQuote)
		r.Get("/events/{eventID}/history", apiSvc.GetHistory)

		// Order execution.
		r.Post("/orders", apiSvc.PlaceOrder)

		// Accounts.
		r.Post("/users", apiSvc.CreateUser)
		r.Get("/users/{userID}/balance", apiSvc.GetBalance)
		r.Get("/users/{userID}/positions", apiSvc.GetPositions)

		// Manual settlement trigger.
		r.Post("/admin/settle/{eventID}", apiSvc.SettleEvent)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("matchbook listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down matchbook...")
	cancelJobs()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("matchbook stopped")
}

// envOr returns the env var or a default when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses a duration env var, falling back to def on absence or
// parse failure.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}
