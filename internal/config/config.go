// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type RazorpayConfig struct {
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	// Orders per user per minute on create-order.
	OrdersPerMinute int `yaml:"orders_per_minute"`
}

type SupabaseConfig struct {
	URL       string `yaml:"url"`
	AnonKey   string `yaml:"anon_key"`
	JWTSecret string `yaml:"jwt_secret"` // when set, tokens are verified locally
}

type ProcessingConfig struct {
	BackendURL     string        `yaml:"backend_url"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// Process requests per user per minute.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type SchedulerConfig struct {
	ExpiryCheckCron string        `yaml:"expiry_check_cron"`
	BatchSize       int           `yaml:"batch_size"`
	ReconcileCron   string        `yaml:"reconcile_cron"`
	StaleOrderAfter time.Duration `yaml:"stale_order_after"`
	Workers         int           `yaml:"workers"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
}

// SessionConfig.Retain is how long an idle session is remembered so it can
// be rejected as expired; after that it is dropped silently.
type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	Retain      time.Duration `yaml:"retain"`
	MaxSessions int           `yaml:"max_sessions"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Razorpay   RazorpayConfig   `yaml:"razorpay"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Processing ProcessingConfig `yaml:"processing"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Session    SessionConfig    `yaml:"session"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config/-dev flags and loads the file they point to.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return Load(configPath, dev)
}

// Load reads the yaml file at path, applies environment overrides and
// defaults, and validates required settings. An empty path skips the file.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployments
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(&cfg.Razorpay.KeyID, "RAZORPAY_KEY_ID")
	override(&cfg.Razorpay.KeySecret, "RAZORPAY_KEY_SECRET")
	override(&cfg.Processing.BackendURL, "BACKEND_API_URL")
	override(&cfg.Supabase.URL, "SUPABASE_URL")
	override(&cfg.Supabase.AnonKey, "SUPABASE_ANON_KEY")
	override(&cfg.Supabase.JWTSecret, "SUPABASE_JWT_SECRET")
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Log.Level, "LOG_LEVEL")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.ReadTimeout = orDefault(cfg.HTTP.ReadTimeout, 10*time.Second)
	cfg.HTTP.WriteTimeout = orDefault(cfg.HTTP.WriteTimeout, 30*time.Second)
	cfg.HTTP.RequestTimeout = orDefault(cfg.HTTP.RequestTimeout, 20*time.Second)
	cfg.HTTP.ShutdownTimeout = orDefault(cfg.HTTP.ShutdownTimeout, 10*time.Second)

	cfg.Redis.TTL = orDefault(cfg.Redis.TTL, time.Hour)

	if cfg.Razorpay.BaseURL == "" {
		cfg.Razorpay.BaseURL = "https://api.razorpay.com"
	}
	cfg.Razorpay.Timeout = orDefault(cfg.Razorpay.Timeout, 15*time.Second)
	if cfg.Razorpay.OrdersPerMinute <= 0 {
		cfg.Razorpay.OrdersPerMinute = 10
	}

	if cfg.Processing.MaxAttempts <= 0 {
		cfg.Processing.MaxAttempts = 3
	}
	cfg.Processing.InitialBackoff = orDefault(cfg.Processing.InitialBackoff, time.Second)
	cfg.Processing.AttemptTimeout = orDefault(cfg.Processing.AttemptTimeout, 60*time.Second)
	if cfg.Processing.RequestsPerMinute <= 0 {
		cfg.Processing.RequestsPerMinute = 30
	}

	if cfg.Scheduler.ExpiryCheckCron == "" {
		cfg.Scheduler.ExpiryCheckCron = "@hourly"
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 200
	}
	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = "@every 30m"
	}
	cfg.Scheduler.StaleOrderAfter = orDefault(cfg.Scheduler.StaleOrderAfter, 24*time.Hour)
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
	cfg.Scheduler.JobTimeout = orDefault(cfg.Scheduler.JobTimeout, 5*time.Minute)

	cfg.Session.IdleTimeout = orDefault(cfg.Session.IdleTimeout, 30*time.Minute)
	cfg.Session.Retain = orDefault(cfg.Session.Retain, 24*time.Hour)
	if cfg.Session.Retain < cfg.Session.IdleTimeout {
		cfg.Session.Retain = cfg.Session.IdleTimeout
	}
	if cfg.Session.MaxSessions <= 0 {
		cfg.Session.MaxSessions = 100000
	}
}

func (c *Config) validate() error {
	// Minimal validation
	var missing []string
	check := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check(c.Razorpay.KeyID, "razorpay.key_id")
	check(c.Razorpay.KeySecret, "razorpay.key_secret")
	check(c.Processing.BackendURL, "processing.backend_url")
	check(c.Supabase.URL, "supabase.url")
	check(c.Supabase.AnonKey, "supabase.anon_key")
	check(c.Database.URL, "database.url")
	check(c.Redis.URL, "redis.url")
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
