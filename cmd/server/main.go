// Package main runs the crowdsale ledger node: the JSON-RPC endpoint, the
// committed-event stream and a separate metrics listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crowdsale-ledger/internal/address"
	"crowdsale-ledger/internal/config"
	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/events"
	"crowdsale-ledger/internal/observability"
	"crowdsale-ledger/internal/processor"
	"crowdsale-ledger/internal/rpc"
	"crowdsale-ledger/internal/storage"
	chstore "crowdsale-ledger/internal/storage/clickhouse"
	"crowdsale-ledger/internal/storage/memory"
	"crowdsale-ledger/internal/storage/migrations"
	pgstore "crowdsale-ledger/internal/storage/postgres"
	redisstore "crowdsale-ledger/internal/storage/redis"
	"crowdsale-ledger/internal/token"
)

const shutdownTimeout = 30 * time.Second

// stores holds the selected backends and how to release them.
type stores struct {
	accounts storage.AccountStore
	journal  storage.JournalStore
	health   func(ctx context.Context) error
	cleanup  []func()
}

func (s *stores) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	programID := cfg.ProgramID.String()
	flag.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "JSON-RPC and websocket listen address")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty to disable)")
	flag.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "Account store backend: memory, postgres or redis")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	flag.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL")
	flag.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string for the event journal")
	flag.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS URL for the JetStream event publisher")
	flag.StringVar(&programID, "program-id", programID, "Program ID used for address derivation")
	flag.BoolVar(&cfg.DevFaucet, "dev-faucet", cfg.DevFaucet, "Enable airdrop and mint RPC methods")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	flag.IntVar(&cfg.RedisMaxAttempts, "redis-max-attempts", cfg.RedisMaxAttempts, "Optimistic retry budget of the redis store")
	flag.Parse()

	if cfg.ProgramID, err = domain.ParsePubkey(programID); err != nil {
		fmt.Fprintf(os.Stderr, "--program-id: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing exit", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", shutdownTimeout))
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}

// run wires the node and blocks until ctx is cancelled or a listener fails.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := createStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer st.close()

	hub := events.NewHub(events.DefaultSubscriberBuffer, logger)
	defer hub.Close()

	sinks := events.Fanout{{Name: "hub", Sink: hub}}
	if st.journal != nil {
		sinks = append(sinks, events.Named{Name: "journal", Sink: events.NewJournalSink(st.journal)})
	}
	if cfg.NATSURL != "" {
		pub, err := events.NewJetStreamPublisher(ctx, cfg.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("create nats publisher: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, events.Named{Name: "nats", Sink: pub})
	}

	deriver := address.NewDeriver(cfg.ProgramID)
	ctl := crowdsale.NewController(st.accounts, deriver,
		crowdsale.WithLogger(logger),
		crowdsale.WithSink(sinks),
	)

	srv := rpc.NewServer(rpc.Config{
		Processor:  processor.New(ctl, logger),
		Controller: ctl,
		Bank:       token.NewBank(st.accounts, deriver, logger),
		Journal:    st.journal,
		Hub:        hub,
		Health:     st.health,
		Logger:     logger,
		DevFaucet:  cfg.DevFaucet,
		Backend:    cfg.StoreBackend,
		WS:         rpc.DefaultWSConfig(),
	})

	g, gctx := errgroup.WithContext(ctx)

	servers := []*http.Server{{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.ListenAddr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	for _, hs := range servers {
		g.Go(func() error {
			logger.Info("starting HTTP server", zap.String("addr", hs.Addr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", hs.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// Closing the hub ends websocket streams so Shutdown does not wait on them.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, hs := range servers {
			if err := hs.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP shutdown failed", zap.String("addr", hs.Addr), zap.Error(err))
			}
		}
		return gctx.Err()
	})

	logger.Info("crowdsale ledger started",
		zap.String("program_id", cfg.ProgramID.String()),
		zap.String("store", cfg.StoreBackend),
		zap.String("journal", cfg.JournalBackend()),
		zap.Bool("nats", cfg.NATSURL != ""),
		zap.Bool("dev_faucet", cfg.DevFaucet),
	)
	return g.Wait()
}

// createStores connects the account store and journal selected by cfg.
func createStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{}
	var pool *pgstore.Pool

	switch cfg.StoreBackend {
	case config.BackendMemory:
		st.accounts = memory.NewAccountStore()

	case config.BackendPostgres:
		var err error
		pool, err = pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st.cleanup = append(st.cleanup, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			st.close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.accounts = pgstore.NewAccountStore(pool)
		st.health = func(ctx context.Context) error { return pool.Ping(ctx) }

	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		st.cleanup = append(st.cleanup, func() { _ = client.Close() })
		st.accounts = redisstore.NewAccountStore(client.Client, redisstore.WithMaxAttempts(cfg.RedisMaxAttempts))
		st.health = client.Health

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	switch cfg.JournalBackend() {
	case "clickhouse":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.cleanup = append(st.cleanup, func() { _ = conn.Close() })
		st.journal = chstore.NewJournalStore(conn)
	case config.BackendPostgres:
		st.journal = pgstore.NewJournalStore(pool)
	default:
		st.journal = memory.NewJournalStore()
	}

	logger.Info("stores ready", zap.String("accounts", cfg.StoreBackend), zap.String("journal", cfg.JournalBackend()))
	return st, nil
}
