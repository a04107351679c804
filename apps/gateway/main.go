package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mahaj/duochat/pkg/auth"
	"github.com/mahaj/duochat/pkg/config"
	"github.com/mahaj/duochat/pkg/db"
	"github.com/mahaj/duochat/pkg/fanout"
	"github.com/mahaj/duochat/pkg/history"
	"github.com/mahaj/duochat/pkg/ingest"
	"github.com/mahaj/duochat/pkg/logging"
	"github.com/mahaj/duochat/pkg/metrics"
	"github.com/mahaj/duochat/pkg/presence"
	"github.com/mahaj/duochat/pkg/registry"
	"github.com/mahaj/duochat/pkg/snowflake"
	"github.com/mahaj/duochat/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Gateway terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.LoadGateway()
	if err != nil {
		return exitConfig, err
	}
	log, closeLog, err := logging.Open(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return exitConfig, err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	messages, closeStore, err := openMessageStore(ctx, cfg, log)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	regOpts := []registry.Option{registry.WithMetrics(m)}
	if cfg.Presence == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		regOpts = append(regOpts, registry.WithObserver(presence.NewRedis(rdb, log)))
		log.Info("Presence enabled", "redis", cfg.RedisAddr)
	}
	reg := registry.New(log, regOpts...)

	var publisher fanout.Publisher = fanout.NewLocal(reg)
	if cfg.Fanout == "kafka" {
		k := fanout.NewKafka(fanout.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			WriteTimeout: cfg.StoreTimeout,
			BatchTimeout: cfg.KafkaBatchTimeout,
			BatchSize:    cfg.KafkaBatchSize,
		}, reg, log)
		defer func() { _ = k.Close() }()
		go func() {
			if err := k.Run(ctx); err != nil {
				log.Error("Kafka consumer stopped", "error", err)
			}
		}()
		publisher = k
		log.Info("Kafka fan-out enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	pipeline := ingest.New(messages, publisher, log,
		ingest.WithMode(ingest.Mode(cfg.ChatMode)),
		ingest.WithMaxContentLength(cfg.MaxContentLength),
		ingest.WithMetrics(m),
	)
	hub := NewHub(reg, pipeline, history.New(messages, log), m, log)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	mux := http.NewServeMux()
	mux.Handle("/ws", newWSHandler(ctx, hub, issuer, cfg.AllowedOrigins, cfg.SendBuffer, cfg.MaxMessageSize, log))
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Gateway Service Starting", "addr", cfg.Addr, "mode", cfg.ChatMode, "store", cfg.MessageStore, "fanout", cfg.Fanout)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return exitRuntime, fmt.Errorf("gateway server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down gateway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return exitOK, nil
}

// openMessageStore builds the configured store and returns its cleanup.
func openMessageStore(ctx context.Context, cfg config.Gateway, log *slog.Logger) (store.MessageStore, func(), error) {
	switch cfg.MessageStore {
	case "postgres":
		conn, err := db.OpenPostgres(db.DefaultPostgresConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, err
		}
		s, err := store.OpenPostgres(ctx, conn, cfg.StoreTimeout)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		log.Info("Using postgres message store")
		return s, func() { _ = conn.Close() }, nil

	case "badger":
		node, err := snowflake.NewNode(cfg.NodeID)
		if err != nil {
			return nil, nil, err
		}
		bdb, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLogger(nil))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger at %s: %w", cfg.BadgerPath, err)
		}
		s, err := store.OpenBadger(bdb, node, log)
		if err != nil {
			_ = bdb.Close()
			return nil, nil, err
		}
		log.Info("Using badger message store", "path", cfg.BadgerPath)
		return s, func() { _ = bdb.Close() }, nil

	case "scylla":
		node, err := snowflake.NewNode(cfg.NodeID)
		if err != nil {
			return nil, nil, err
		}
		session, err := db.NewSession(db.ScyllaConfig{
			Hosts:    cfg.ScyllaHosts,
			Keyspace: cfg.ScyllaKeyspace,
			Timeout:  cfg.StoreTimeout,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return store.NewScylla(session, node), session.Close, nil

	default:
		log.Warn("Using in-memory message store, history is lost on restart")
		return store.NewMemory(), func() {}, nil
	}
}
