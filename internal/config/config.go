// Package config loads service settings: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"visitplan/internal/opt"
)

// EnvFile names the variable that points at the YAML config file.
const EnvFile = "VISITPLAN_CONFIG"

type Config struct {
	Port        string         `yaml:"port"`
	DatabaseURL string         `yaml:"databaseUrl"`
	RedisURL    string         `yaml:"redisUrl"`
	Log         LogConfig      `yaml:"log"`
	Rate        RateConfig     `yaml:"rate"`
	Webhook     WebhookConfig  `yaml:"webhook"`
	Distance    DistanceConfig `yaml:"distance"`
	Solver      opt.Config     `yaml:"solver"`
	// JobWorkers bounds the asynchronous solves running at once.
	JobWorkers int `yaml:"jobWorkers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type RateConfig struct {
	RPS   float64 `yaml:"rps"` // 0 disables limiting
	Burst int     `yaml:"burst"`
}

type WebhookConfig struct {
	Secret      string `yaml:"secret"`
	MaxAttempts int    `yaml:"maxAttempts"`
}

type DistanceConfig struct {
	APIKey       string        `yaml:"apiKey"`
	DepotAddress string        `yaml:"depotAddress"`
	BaseURL      string        `yaml:"baseUrl"`
	Timeout      time.Duration `yaml:"timeout"`
}

func Default() Config {
	return Config{
		Port:       "8080",
		Log:        LogConfig{Level: "info", Format: "text"},
		Rate:       RateConfig{RPS: 5, Burst: 10},
		Webhook:    WebhookConfig{MaxAttempts: 10},
		Distance:   DistanceConfig{DepotAddress: "CV2 2TE, UK", Timeout: 10 * time.Second},
		Solver:     opt.DefaultConfig(),
		JobWorkers: 2,
	}
}

// Load builds the configuration from path (may be empty; falls back to
// $VISITPLAN_CONFIG) and the process environment.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, env func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path == "" {
		path, _ = env(EnvFile)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := env(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := env(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := env(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDIS_URL", &cfg.RedisURL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	float("RATE_RPS", &cfg.Rate.RPS)
	integer("RATE_BURST", &cfg.Rate.Burst)
	integer("WEBHOOK_MAX_ATTEMPTS", &cfg.Webhook.MaxAttempts)
	str("WEBHOOK_SECRET", &cfg.Webhook.Secret)
	str("GOOGLE_MAPS_API_KEY", &cfg.Distance.APIKey)
	str("DEPOT_ADDRESS", &cfg.Distance.DepotAddress)
	integer("SOLVER_WORKERS", &cfg.Solver.Workers)
	duration("SOLVER_TIME_LIMIT", &cfg.Solver.TimeLimit)
	integer("SOLVER_NODE_LIMIT", &cfg.Solver.NodeLimit)
	integer("JOB_WORKERS", &cfg.JobWorkers)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid TCP port", c.Port))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q (allowed: text, json)", c.Log.Format))
	}
	if c.Rate.RPS < 0 {
		errs = append(errs, fmt.Errorf("rate rps must be >= 0 (got %g)", c.Rate.RPS))
	}
	if c.Rate.RPS > 0 && c.Rate.Burst < 1 {
		errs = append(errs, fmt.Errorf("rate burst must be >= 1 when limiting (got %d)", c.Rate.Burst))
	}
	if c.Webhook.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("webhook max attempts must be >= 1 (got %d)", c.Webhook.MaxAttempts))
	}
	if c.Distance.Timeout < 0 {
		errs = append(errs, fmt.Errorf("distance timeout must be >= 0 (got %s)", c.Distance.Timeout))
	}
	if c.JobWorkers < 1 {
		errs = append(errs, fmt.Errorf("job workers must be >= 1 (got %d)", c.JobWorkers))
	}
	if err := c.Solver.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("solver: %w", err))
	}
	return errors.Join(errs...)
}

// Logger returns a logrus logger configured from c.Log.
func (c Config) Logger() *log.Logger {
	l := log.New()
	if lvl, err := log.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	if strings.EqualFold(c.Log.Format, "json") {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return l
}
