package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/binary-exchange/internal/auth"
	"github.com/atmx/binary-exchange/internal/config"
	"github.com/atmx/binary-exchange/internal/engine"
	"github.com/atmx/binary-exchange/internal/events"
	"github.com/atmx/binary-exchange/internal/metrics"
	"github.com/atmx/binary-exchange/internal/risk"
	"github.com/atmx/binary-exchange/internal/store"
	"github.com/atmx/binary-exchange/internal/trade"
)

func main() {
	// A missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exchange stopped with error", "err", err)
		os.Exit(1)
	}
	fmt.Println("exchange stopped")
}

func newLogger(cfg config.Logging) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Initialize store ---
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeStore)

	// Wrap with Redis read-through cache if configured.
	if cfg.Cache.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Cache.TTL)
		logger.Info("Redis cache enabled", "ttl", cfg.Cache.TTL.String())
	}

	// --- Event fan-out ---
	hubCtx, stopHub := context.WithCancel(context.Background())
	cleanup = append(cleanup, stopHub)
	wsHub := trade.NewWSHub(logger)
	go wsHub.Run(hubCtx)

	publishers := events.Multi{wsHub}
	if brokers := events.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		kp := events.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
		cleanup = append(cleanup, func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka close failed", "err", err)
			}
		})
		publishers = append(publishers, kp)
		logger.Info("Kafka events enabled", "brokers", brokers, "topic", cfg.Kafka.Topic)
	}

	// --- Engine ---
	opts := []engine.Option{engine.WithPublisher(publishers), engine.WithLogger(logger)}
	if limiter := risk.NewLimiter(cfg.Risk.MaxPerMarket, cfg.Risk.MaxPerCategory); limiter.Enabled() {
		opts = append(opts, engine.WithLimiter(limiter))
		logger.Info("position limits enabled",
			"max_per_market", cfg.Risk.MaxPerMarket.String(),
			"max_per_category", cfg.Risk.MaxPerCategory.String(),
		)
	}
	eng := engine.New(st, opts...)

	if ttl := cfg.Orders.PendingTTL; ttl > 0 {
		go eng.RunExpiry(ctx, cfg.Orders.ExpiryInterval, ttl)
		logger.Info("pending order expiry enabled", "ttl", ttl.String())
	}

	keys := make([]auth.Key, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		key, err := auth.ParseKey(k.UserID, k.KeySHA256, k.Scopes)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	svc := trade.NewService(eng, cfg.Faucet.Amount)

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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"binary-exchange"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/v1", svc.APIRoutes(auth.NewAuthenticator(keys), wsHub))

	if cfg.Auth.AdminToken != "" {
		r.Mount("/admin", svc.AdminRoutes(cfg.Auth.AdminToken))
	} else {
		logger.Warn("ADMIN_TOKEN not set, admin routes disabled")
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("exchange listening", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown.
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down exchange...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	return nil
}

// openStore connects the configured ledger backend and returns its closer.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		ps := store.NewPostgresStore(pool)
		if err := ps.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return ps, pool.Close, nil

	case config.DriverSQLite:
		ss, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened SQLite ledger", "path", ss.Path())
		return ss, func() {
			if err := ss.Close(); err != nil {
				logger.Warn("sqlite close failed", "err", err)
			}
		}, nil

	default:
		logger.Warn("using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}, nil
	}
}
