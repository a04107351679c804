package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/duochat/pkg/config"
	"github.com/mahaj/duochat/pkg/db"
	"github.com/mahaj/duochat/pkg/logging"
	"github.com/mahaj/duochat/pkg/snowflake"
	"github.com/mahaj/duochat/pkg/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Messaging service terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.LoadArchiver()
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

	scylla := db.ScyllaConfig{Hosts: cfg.ScyllaHosts, Keyspace: cfg.ScyllaKeyspace, Timeout: cfg.StoreTimeout}
	if err := db.EnsureScyllaSchema(scylla, log); err != nil {
		return exitRuntime, err
	}
	session, err := db.NewSession(scylla, log)
	if err != nil {
		return exitRuntime, err
	}
	defer session.Close()

	// Archived messages keep their ids; the node only backs Append.
	node, err := snowflake.NewNode(0)
	if err != nil {
		return exitRuntime, err
	}
	consumer := NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, store.NewScylla(session, node), log)
	defer func() { _ = consumer.Close() }()

	log.Info("Starting Kafka Consumer", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
	if err := consumer.Consume(ctx); err != nil {
		return exitRuntime, err
	}
	log.Info("Messaging service stopped")
	return exitOK, nil
}
