// Package db opens the database connections used by the message and user
// stores and creates their schemas.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

func DefaultPostgresConfig(url string) PostgresConfig {
	return PostgresConfig{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// OpenPostgres opens a pooled connection and pings it.
func OpenPostgres(cfg PostgresConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	conn, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// PostgresSchema is the users/messages layout shared by the api and the
// gateway.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(80) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		content TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		sender_id BIGINT NOT NULL REFERENCES users(id),
		recipient_id BIGINT REFERENCES users(id)
	)`,
	`CREATE INDEX IF NOT EXISTS messages_pair_idx
		ON messages (LEAST(sender_id, recipient_id), GREATEST(sender_id, recipient_id), timestamp, id)`,
	`CREATE INDEX IF NOT EXISTS messages_global_idx
		ON messages (timestamp, id) WHERE recipient_id IS NULL`,
}

func MigratePostgres(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range PostgresSchema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
