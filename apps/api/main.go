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

	"github.com/mahaj/duochat/pkg/auth"
	"github.com/mahaj/duochat/pkg/config"
	"github.com/mahaj/duochat/pkg/db"
	"github.com/mahaj/duochat/pkg/logging"
	"github.com/mahaj/duochat/pkg/presence"
	"github.com/mahaj/duochat/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func CORSMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(allowedOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case lo.Contains(allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// routes wires the public and token-protected endpoints. A nil members
// disables the presence endpoint.
func routes(users store.UserStore, members Members, issuer *auth.Issuer, allowedOrigins []string, log *slog.Logger) http.Handler {
	accounts := NewAccountHandler(users, issuer, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", accounts.Register)
	mux.HandleFunc("POST /login", accounts.Login)
	mux.Handle("GET /users", issuer.Middleware(log, UsersHandler(users, log)))
	if members != nil {
		mux.Handle("GET /channels/{id}/users", issuer.Middleware(log, NewPresenceHandler(members, log)))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return CORSMiddleware(allowedOrigins, mux)
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "API terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.LoadAPI()
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

	var users store.UserStore
	if cfg.UserStore == "postgres" {
		conn, err := db.OpenPostgres(db.DefaultPostgresConfig(cfg.DatabaseURL))
		if err != nil {
			return exitRuntime, err
		}
		defer func() { _ = conn.Close() }()
		users = store.NewPostgres(conn, cfg.StoreTimeout)
	} else {
		log.Warn("Using in-memory user store, accounts are lost on restart")
		users = store.NewMemory()
	}

	var members Members
	if cfg.Presence == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		members = presence.NewRedis(rdb, log)
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           routes(users, members, issuer, cfg.AllowedOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API Service Starting", "addr", cfg.Addr, "users", cfg.UserStore, "presence", cfg.Presence)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return exitRuntime, fmt.Errorf("api server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down api")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return exitOK, nil
}
