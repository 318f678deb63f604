// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName   string `env:"APP_NAME" envDefault:"kioskcheck"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Socket  SocketConfig  `envPrefix:"SOCKET_"`
	Push    PushConfig    `envPrefix:"PUSH_"`
	Submit  SubmitConfig  `envPrefix:"SUBMIT_"`
	Session SessionConfig `envPrefix:"SESSION_"`
	Storage StorageConfig `envPrefix:"STORAGE_"`
}

// SocketConfig describes the sensor websocket feed.
type SocketConfig struct {
	URL              string        `env:"URL" envDefault:"ws://localhost:8765/sensor"`
	MaxReconnects    int           `env:"MAX_RECONNECTS" envDefault:"5"`
	ReconnectDelay   time.Duration `env:"RECONNECT_DELAY" envDefault:"3s"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
}

// PushConfig describes the redis pub/sub feed that mirrors the alcohol_value node.
type PushConfig struct {
	RedisURL        string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Channel         string        `env:"CHANNEL" envDefault:"alcohol_value"`
	ConnectAttempts int           `env:"CONNECT_ATTEMPTS" envDefault:"3"`
	ConnectInterval time.Duration `env:"CONNECT_INTERVAL" envDefault:"2s"`
}

type SubmitConfig struct {
	Endpoint string        `env:"ENDPOINT,required,notEmpty"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type SessionConfig struct {
	DecayEnabled bool          `env:"DECAY_ENABLED" envDefault:"false"`
	DecayGrace   time.Duration `env:"DECAY_GRACE" envDefault:"2s"`
	Retention    time.Duration `env:"RETENTION" envDefault:"10m"`
}

type StorageConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"kioskcheck.db"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Socket.MaxReconnects < 0 {
		return fmt.Errorf("socket max reconnects must not be negative")
	}
	if c.Session.DecayEnabled && c.Session.DecayGrace <= 0 {
		return fmt.Errorf("decay grace must be positive when decay is enabled")
	}
	return nil
}

// LoadStorage reads only the STORAGE_ section, for commands that never talk
// to the sensors or the backend.
func LoadStorage() (StorageConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return StorageConfig{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg StorageConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "STORAGE_"}); err != nil {
		return StorageConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
