package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds console configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string `validate:"required,numeric"`

	BackendURL     string        `validate:"required,url"`
	BackendTimeout time.Duration `validate:"gt=0"`

	// SeedToken, when non-empty, is written to the credential store at startup.
	SeedToken string

	CredentialsBackend string `validate:"oneof=in_memory file memcached"`
	CredentialsKey     string `validate:"required"`
	CredentialsPath    string `validate:"required_if=CredentialsBackend file"`

	MemcachedAddrs        string        `validate:"required_if=CredentialsBackend memcached"`
	MemcachedTimeout      time.Duration `validate:"gt=0"`
	MemcachedMaxIdleConns int           `validate:"gte=1"`

	RequestTimeout time.Duration `validate:"gt=0"`
	RateLimitRPS   int           `validate:"gte=0"`
	RateLimitBurst int           `validate:"gte=1"`

	HealthBackendWindow   time.Duration `validate:"gt=0"`
	HealthBackendErrorPct int           `validate:"gte=1,lte=100"`

	ShutdownTimeout               time.Duration `validate:"gt=0"`
	ShutdownInFlightTimeout       time.Duration `validate:"gt=0"`
	ShutdownInFlightCheckInterval time.Duration `validate:"gt=0"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Backend struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"backend"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Credentials struct {
		Backend   string `yaml:"backend"`
		Key       string `yaml:"key"`
		Path      string `yaml:"path"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"credentials"`

	RateLimit struct {
		RPS   *int `yaml:"rps"`
		Burst int  `yaml:"burst"`
	} `yaml:"rate_limit"`

	Health struct {
		BackendWindow   string `yaml:"backend_window"`
		BackendErrorPct int    `yaml:"backend_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

const (
	defaultBackendURL = "http://localhost:5000"
	defaultTokenKey   = "token"
)

var structValidator = validator.New()

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) after loading .env
// from the working directory. Env vars win over file values. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")

	cfg.BackendURL = firstNonEmpty(os.Getenv("WEATHER_API_BASE_URL"), fc.Backend.URL, defaultBackendURL)
	cfg.BackendTimeout = parseDurationOrZero(fc.Backend.Timeout, 10*time.Second)

	cfg.SeedToken = strings.TrimSpace(os.Getenv("WEATHER_API_TOKEN"))

	cfg.CredentialsBackend = strings.ToLower(firstNonEmpty(os.Getenv("CREDENTIALS_BACKEND"), fc.Credentials.Backend, "in_memory"))
	cfg.CredentialsKey = firstNonEmpty(fc.Credentials.Key, defaultTokenKey)
	cfg.CredentialsPath = strings.TrimSpace(fc.Credentials.Path)

	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Credentials.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Credentials.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Credentials.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.RateLimitRPS = 20
	if fc.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *fc.RateLimit.RPS
	}
	cfg.RateLimitBurst = fc.RateLimit.Burst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cfg.HealthBackendWindow = parseDuration(fc.Health.BackendWindow, 60*time.Second)
	cfg.HealthBackendErrorPct = fc.Health.BackendErrorPct
	if cfg.HealthBackendErrorPct == 0 {
		cfg.HealthBackendErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 15*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate runs struct tag checks, then cross-field rules. A console request must outlive the
// backend call it waits on, so RequestTimeout is raised to BackendTimeout+1s when shorter.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q check (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RequestTimeout <= c.BackendTimeout {
		c.RequestTimeout = c.BackendTimeout + time.Second
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validation can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
