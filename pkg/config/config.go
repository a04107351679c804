// Package config loads process settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Common struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	// LOG_FILE redirects logs to a file instead of stderr
	LogFile string `envconfig:"LOG_FILE"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"devsecret" validate:"required"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h" validate:"gt=0"`

	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`

	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// ALLOWED_ORIGINS restricts browser origins; empty allows all
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

type Gateway struct {
	Common

	Addr     string `envconfig:"GATEWAY_ADDR" default:":8080" validate:"required"`
	ChatMode string `envconfig:"CHAT_MODE" default:"pairwise" validate:"oneof=pairwise global"`

	MessageStore   string   `envconfig:"MESSAGE_STORE" default:"memory" validate:"oneof=memory postgres badger scylla"`
	DatabaseURL    string   `envconfig:"DATABASE_URL" validate:"required_if=MessageStore postgres"`
	BadgerPath     string   `envconfig:"BADGER_PATH" default:"data/messages" validate:"required_if=MessageStore badger"`
	ScyllaHosts    []string `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	ScyllaKeyspace string   `envconfig:"SCYLLA_KEYSPACE" default:"chat"`
	NodeID         int64    `envconfig:"NODE_ID" default:"1" validate:"min=0,max=1023"`

	Fanout       string   `envconfig:"FANOUT" default:"local" validate:"oneof=local kafka"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:19092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"chat-messages"`

	// KAFKA_BATCH_TIMEOUT is the longest a publish waits for its batch.
	KafkaBatchTimeout time.Duration `envconfig:"KAFKA_BATCH_TIMEOUT" default:"5ms" validate:"gt=0,max=1s"`
	KafkaBatchSize    int           `envconfig:"KAFKA_BATCH_SIZE" default:"1" validate:"min=1"`

	Presence string `envconfig:"PRESENCE" default:"none" validate:"oneof=none redis"`

	SendBuffer       int   `envconfig:"SEND_BUFFER" default:"256" validate:"min=1"`
	MaxMessageSize   int64 `envconfig:"MAX_MESSAGE_SIZE" default:"8192" validate:"min=64"`
	MaxContentLength int   `envconfig:"MAX_CONTENT_LENGTH" default:"4096" validate:"min=1"`
}

type API struct {
	Common

	Addr      string `envconfig:"API_ADDR" default:":8081" validate:"required"`
	UserStore string `envconfig:"USER_STORE" default:"memory" validate:"oneof=memory postgres"`
	// DATABASE_URL is shared with the gateway's postgres message store
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=UserStore postgres"`
	Presence    string `envconfig:"PRESENCE" default:"none" validate:"oneof=none redis"`
}

// Archiver configures the service that copies the fan-out topic into
// Scylla.
type Archiver struct {
	Common

	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS" default:"localhost:19092" validate:"min=1"`
	KafkaTopic     string   `envconfig:"KAFKA_TOPIC" default:"chat-messages" validate:"required"`
	KafkaGroup     string   `envconfig:"KAFKA_GROUP" default:"messaging-service-group" validate:"required"`
	ScyllaHosts    []string `envconfig:"SCYLLA_HOSTS" default:"localhost:9042" validate:"min=1"`
	ScyllaKeyspace string   `envconfig:"SCYLLA_KEYSPACE" default:"chat" validate:"required"`
}

var validate = validator.New()

func LoadGateway() (Gateway, error) {
	var cfg Gateway
	if err := load(&cfg); err != nil {
		return Gateway{}, err
	}
	return cfg, nil
}

func LoadAPI() (API, error) {
	var cfg API
	if err := load(&cfg); err != nil {
		return API{}, err
	}
	return cfg, nil
}

func LoadArchiver() (Archiver, error) {
	var cfg Archiver
	if err := load(&cfg); err != nil {
		return Archiver{}, err
	}
	return cfg, nil
}

func load(cfg any) error {
	// A missing .env is not an error.
	_ = godotenv.Load()
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
