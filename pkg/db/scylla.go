package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"
)

type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

type Session struct {
	*gocql.Session
}

// Rows is a result iterator; *gocql.Iter satisfies it.
type Rows interface {
	Scan(dest ...any) bool
	Close() error
}

func (s *Session) Exec(ctx context.Context, stmt string, values ...any) error {
	return s.Query(stmt, values...).WithContext(ctx).Exec()
}

func (s *Session) Iter(ctx context.Context, stmt string, values ...any) Rows {
	return s.Query(stmt, values...).WithContext(ctx).Iter()
}

func NewSession(cfg ScyllaConfig, log *slog.Logger) (*Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to scylla keyspace %s: %w", cfg.Keyspace, err)
	}

	log.Info("Connected to ScyllaDB cluster", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace)
	return &Session{Session: session}, nil
}

// EnsureScyllaSchema creates the keyspace through the system keyspace, then
// the messages table inside it.
func EnsureScyllaSchema(cfg ScyllaConfig, log *slog.Logger) error {
	sysCfg := cfg
	sysCfg.Keyspace = "system"
	sys, err := NewSession(sysCfg, log)
	if err != nil {
		return err
	}
	err = sys.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`,
		cfg.Keyspace)).Exec()
	sys.Close()
	if err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	session, err := NewSession(cfg, log)
	if err != nil {
		return err
	}
	defer session.Close()

	err = session.Query(`CREATE TABLE IF NOT EXISTS messages (
		channel_id text,
		id bigint,
		content text,
		timestamp timestamp,
		sender_id bigint,
		sender_name text,
		recipient_id bigint,
		PRIMARY KEY (channel_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`).Exec()
	if err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	return nil
}
