package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mahaj/duochat/pkg/db"
	"github.com/mahaj/duochat/pkg/logging"
	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var level string
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Create or drop the chat schemas",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&level, "log-level", "info", "debug, info, warn or error")

	logger := func() (*slog.Logger, error) {
		return logging.New(level, "text", os.Stderr)
	}
	root.AddCommand(buildPostgresCmd(logger), buildScyllaCmd(logger), buildDropScyllaCmd(logger))
	return root
}

func buildPostgresCmd(logger func() (*slog.Logger, error)) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "postgres",
		Short: "Create the users and messages tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger()
			if err != nil {
				return err
			}
			conn, err := db.OpenPostgres(db.DefaultPostgresConfig(url))
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.MigratePostgres(cmd.Context(), conn); err != nil {
				return err
			}
			log.Info("Postgres schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "database-url", os.Getenv("DATABASE_URL"), "postgres connection url")
	return cmd
}

func scyllaFlags(cmd *cobra.Command, cfg *db.ScyllaConfig) {
	hosts := os.Getenv("SCYLLA_HOSTS")
	if hosts == "" {
		hosts = "localhost:9042"
	}
	cmd.Flags().StringSliceVar(&cfg.Hosts, "hosts", strings.Split(hosts, ","), "scylla contact points")
	cmd.Flags().StringVar(&cfg.Keyspace, "keyspace", "chat", "keyspace holding the messages table")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "connect and query timeout")
}

func buildScyllaCmd(logger func() (*slog.Logger, error)) *cobra.Command {
	var cfg db.ScyllaConfig
	cmd := &cobra.Command{
		Use:   "scylla",
		Short: "Create the keyspace and messages table",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger()
			if err != nil {
				return err
			}
			if err := db.EnsureScyllaSchema(cfg, log); err != nil {
				return err
			}
			log.Info("Scylla schema applied", "keyspace", cfg.Keyspace)
			return nil
		},
	}
	scyllaFlags(cmd, &cfg)
	return cmd
}

func buildDropScyllaCmd(logger func() (*slog.Logger, error)) *cobra.Command {
	var cfg db.ScyllaConfig
	cmd := &cobra.Command{
		Use:   "drop-scylla",
		Short: "Drop the messages table",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger()
			if err != nil {
				return err
			}
			session, err := db.NewSession(cfg, log)
			if err != nil {
				return err
			}
			defer session.Close()

			log.Info("Dropping table messages...")
			if err := session.Query("DROP TABLE IF EXISTS messages").Exec(); err != nil {
				return fmt.Errorf("failed to drop table: %w", err)
			}
			log.Info("Table dropped successfully")
			return nil
		},
	}
	scyllaFlags(cmd, &cfg)
	return cmd
}
