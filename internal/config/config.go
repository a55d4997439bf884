package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Executor  ExecutorConfig  `yaml:"executor"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `yaml:"port"`
	Interface    string        `yaml:"interface"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds JWT verification configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SessionConfig holds collaboration session tuning
type SessionConfig struct {
	// InactivityTTL is how long a session may sit idle before the reaper
	// marks it inactive
	InactivityTTL time.Duration `yaml:"inactivity_ttl"`
	// ReaperSpec is the cron schedule for the inactivity sweep
	ReaperSpec string `yaml:"reaper_spec"`
	// MaxParticipantsDefault applies when session creation omits a limit
	MaxParticipantsDefault int `yaml:"max_participants_default"`
}

// ExecutorConfig holds the code execution sandbox client configuration
type ExecutorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WebSocketConfig holds realtime connection tuning
type WebSocketConfig struct {
	ReadLimit    int64         `yaml:"read_limit"`
	PongWait     time.Duration `yaml:"pong_wait"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteWait    time.Duration `yaml:"write_wait"`
	SendBuffer   int           `yaml:"send_buffer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	IsDev            bool   `yaml:"is_dev"`
	LogDir           string `yaml:"log_dir"`
	MaxAgeDays       int    `yaml:"max_age_days"`
	MaxSizeMB        int    `yaml:"max_size_mb"`
	MaxBackups       int    `yaml:"max_backups"`
	AlsoLogToConsole bool   `yaml:"also_log_to_console"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Interface:    "0.0.0.0",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
			DB:   0,
		},
		Sessions: SessionConfig{
			InactivityTTL:          24 * time.Hour,
			ReaperSpec:             "@hourly",
			MaxParticipantsDefault: 10,
		},
		Executor: ExecutorConfig{
			URL:     "http://localhost:8090/execute",
			Timeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadLimit:    512 * 1024,
			PongWait:     60 * time.Second,
			PingInterval: 30 * time.Second,
			WriteWait:    10 * time.Second,
			SendBuffer:   256,
		},
		Logging: LoggingConfig{
			Level:            "info",
			LogDir:           "logs",
			MaxAgeDays:       7,
			MaxSizeMB:        100,
			MaxBackups:       10,
			AlsoLogToConsole: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "COLLAB_SERVER_PORT")
	setString(&c.Server.Interface, "COLLAB_SERVER_INTERFACE")
	setString(&c.Redis.Host, "COLLAB_REDIS_HOST")
	setString(&c.Redis.Port, "COLLAB_REDIS_PORT")
	setString(&c.Redis.Password, "COLLAB_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "COLLAB_REDIS_DB")
	setString(&c.Auth.JWTSecret, "COLLAB_JWT_SECRET")
	setDuration(&c.Sessions.InactivityTTL, "COLLAB_SESSION_TTL")
	setString(&c.Sessions.ReaperSpec, "COLLAB_REAPER_SPEC")
	setInt(&c.Sessions.MaxParticipantsDefault, "COLLAB_MAX_PARTICIPANTS")
	setString(&c.Executor.URL, "COLLAB_EXECUTOR_URL")
	setDuration(&c.Executor.Timeout, "COLLAB_EXECUTOR_TIMEOUT")
	setString(&c.Logging.Level, "COLLAB_LOG_LEVEL")
	setString(&c.Logging.LogDir, "COLLAB_LOG_DIR")
}

// Validate checks for configuration values the server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set COLLAB_JWT_SECRET)")
	}
	if c.Sessions.InactivityTTL <= 0 {
		return fmt.Errorf("sessions.inactivity_ttl must be positive")
	}
	if c.Sessions.MaxParticipantsDefault < 1 {
		return fmt.Errorf("sessions.max_participants_default must be at least 1")
	}
	return nil
}

// RedisAddr returns the host:port address for the Redis client.
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
