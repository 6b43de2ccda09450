package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	libconfig "evcharge/backend/libs/config"
)

// HTTPConfig configures the listener shared by the OCPP endpoint and the REST API.
type HTTPConfig struct {
	Port         string        `yaml:"port" env:"OCPP_HTTP_PORT"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"OCPP_HTTP_WRITE_TIMEOUT"`
}

// DatabaseConfig configures postgres.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"OCPP_POSTGRES_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"OCPP_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" env:"OCPP_POSTGRES_MAX_IDLE_CONNS"`
	EnsureSchema bool   `yaml:"ensureSchema" env:"OCPP_POSTGRES_ENSURE_SCHEMA"`
}

// RedisConfig configures the presence store. An empty Addr disables presence.
type RedisConfig struct {
	Addr        string        `yaml:"addr" env:"OCPP_REDIS_ADDR"`
	Password    string        `yaml:"password" env:"OCPP_REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"OCPP_REDIS_DB"`
	PresenceTTL time.Duration `yaml:"presenceTTL" env:"OCPP_PRESENCE_TTL"`
}

// ServicesConfig lists downstream services. An empty URL disables the notification.
type ServicesConfig struct {
	EventsURL     string        `yaml:"eventsUrl" env:"OCPP_EVENTS_URL"`
	EventsTimeout time.Duration `yaml:"eventsTimeout" env:"OCPP_EVENTS_TIMEOUT"`
	EventsBuffer  int           `yaml:"eventsBuffer" env:"OCPP_EVENTS_BUFFER"`
}

// WebSocketConfig tunes station connections.
type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"pingInterval" env:"OCPP_PING_INTERVAL"`
	PongWait     time.Duration `yaml:"pongWait" env:"OCPP_PONG_WAIT"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"OCPP_WRITE_TIMEOUT"`
	ReadLimit    int64         `yaml:"readLimit" env:"OCPP_READ_LIMIT"`
}

// OCPPConfig tunes protocol behaviour.
type OCPPConfig struct {
	CallTimeout       time.Duration `yaml:"callTimeout" env:"OCPP_CALL_TIMEOUT"`
	LookupTimeout     time.Duration `yaml:"lookupTimeout" env:"OCPP_LOOKUP_TIMEOUT"`
	PersistTimeout    time.Duration `yaml:"persistTimeout" env:"OCPP_PERSIST_TIMEOUT"`
	HeartbeatInterval int           `yaml:"heartbeatInterval" env:"OCPP_HEARTBEAT_INTERVAL"`
	MessageLogWorkers int           `yaml:"messageLogWorkers" env:"OCPP_MESSAGE_LOG_WORKERS"`
	MessageLogBuffer  int           `yaml:"messageLogBuffer" env:"OCPP_MESSAGE_LOG_BUFFER"`
}

// AuthConfig protects the REST API and station connections. An empty JWTSecret leaves
// the API open. With StationBasicAuth, stations that have a stored key must present it.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwtSecret" env:"OCPP_JWT_SECRET"`
	StationBasicAuth bool   `yaml:"stationBasicAuth" env:"OCPP_STATION_BASIC_AUTH"`
}

// Config defines OCPP server configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Services  ServicesConfig  `yaml:"services"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	OCPP      OCPPConfig      `yaml:"ocpp"`
	Auth      AuthConfig      `yaml:"auth"`
	NodeID    string          `yaml:"nodeId" env:"OCPP_NODE_ID"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: "8081", WriteTimeout: 45 * time.Second},
		Database: DatabaseConfig{
			EnsureSchema: true,
		},
		Redis:    RedisConfig{PresenceTTL: 10 * time.Minute},
		Auth:     AuthConfig{StationBasicAuth: true},
		Services: ServicesConfig{EventsTimeout: 5 * time.Second, EventsBuffer: 256},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			PongWait:     60 * time.Second,
			WriteTimeout: 10 * time.Second,
			ReadLimit:    1024 * 1024,
		},
		OCPP: OCPPConfig{
			CallTimeout:       30 * time.Second,
			LookupTimeout:     3 * time.Second,
			PersistTimeout:    5 * time.Second,
			HeartbeatInterval: 300,
			MessageLogWorkers: 4,
			MessageLogBuffer:  256,
		},
	}
}

// Load uses shared config loader and validates required fields.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.NodeID == "" {
		cfg.NodeID, _ = os.Hostname()
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database DSN is required")
	}
	if c.OCPP.CallTimeout <= 0 {
		return errors.New("ocpp call timeout must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket ping interval %s must be shorter than pong wait %s", c.WebSocket.PingInterval, c.WebSocket.PongWait)
	}
	if c.HTTP.WriteTimeout <= c.OCPP.CallTimeout {
		return fmt.Errorf("http write timeout %s must exceed the call timeout %s", c.HTTP.WriteTimeout, c.OCPP.CallTimeout)
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8081"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
