// Config loads configuration.
//
// Settings come from, in increasing order of precedence: defaults, an
// optional YAML file, a .env file in the working directory, and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flusio/minz-worker/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const Version = "1.0"

// Config holds the settings of the worker and the server.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	PoolSize    int    `yaml:"pool_size"`

	Queue       string        `yaml:"queue"`
	Sleep       time.Duration `yaml:"sleep"`
	StopAfter   int64         `yaml:"stop_after"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	MaxAttempts int64         `yaml:"max_attempts"`

	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`

	Port         string `yaml:"port"`
	AuthUser     string `yaml:"auth_user"`
	AuthPassword string `yaml:"auth_password"`

	DownstreamURL  string  `yaml:"downstream_url"`
	DownstreamAuth string  `yaml:"downstream_auth"`
	DownstreamRate float64 `yaml:"downstream_rate"`
	// Job names forwarded to the downstream service.
	DownstreamJobs []string `yaml:"downstream_jobs"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		PoolSize:        10,
		Queue:           models.AllQueues,
		Sleep:           3 * time.Second,
		LockTimeout:     models.DefaultLockTimeout,
		MaxAttempts:     models.DefaultMaxAttempts,
		LogLevel:        "info",
		LogFormat:       "console",
		MetricsInterval: time.Minute,
		Port:            "9090",
		AuthUser:        "test",
		DownstreamJobs:  []string{"downstream"},
	}
}

// Limits returns the lock timeout and attempt ceiling.
func (c *Config) Limits() models.Limits {
	return models.Limits{LockTimeout: c.LockTimeout, MaxAttempts: c.MaxAttempts}
}

// Load reads the YAML file at path, if path is not empty, then the .env
// file, then the environment. CONFIG_FILE is used when path is empty.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	c := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := c.fromEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) fromEnv() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("DATABASE_URL", &c.DatabaseURL)
	str("WORKER_QUEUE", &c.Queue)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("PORT", &c.Port)
	str("AUTH_USER", &c.AuthUser)
	str("AUTH_PASSWORD", &c.AuthPassword)
	str("DOWNSTREAM_URL", &c.DownstreamURL)
	str("DOWNSTREAM_WORKER_AUTH", &c.DownstreamAuth)
	if v := os.Getenv("DOWNSTREAM_JOBS"); v != "" {
		c.DownstreamJobs = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.DownstreamJobs = append(c.DownstreamJobs, name)
			}
		}
	}

	var errs []error
	if os.Getenv("PG_WORKER_POOL_SIZE") != "" {
		n, err := GetInt("PG_WORKER_POOL_SIZE")
		if err != nil {
			errs = append(errs, fmt.Errorf("PG_WORKER_POOL_SIZE: %w", err))
		}
		c.PoolSize = n
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	dur("WORKER_SLEEP", &c.Sleep)
	dur("JOB_LOCK_TIMEOUT", &c.LockTimeout)
	dur("METRICS_INTERVAL", &c.MetricsInterval)
	i64 := func(name string, dst *int64) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	i64("WORKER_STOP_AFTER", &c.StopAfter)
	i64("JOB_MAX_ATTEMPTS", &c.MaxAttempts)
	if v := os.Getenv("DOWNSTREAM_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DOWNSTREAM_RATE: %w", err))
		} else {
			c.DownstreamRate = f
		}
	}
	return errors.Join(errs...)
}

// Validate checks that the settings can be used.
func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be greater than 0, got %d", c.PoolSize)
	}
	if c.Sleep <= 0 {
		return fmt.Errorf("worker sleep must be greater than 0, got %v", c.Sleep)
	}
	if c.StopAfter < 0 {
		return fmt.Errorf("stop after must not be negative, got %d", c.StopAfter)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be greater than 0, got %v", c.LockTimeout)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative, got %d", c.MaxAttempts)
	}
	if c.DownstreamRate < 0 {
		return fmt.Errorf("downstream rate must not be negative, got %v", c.DownstreamRate)
	}
	return nil
}

// GetInt loads the environment variable varName, converts it to an integer,
// and returns that integer or an error.
func GetInt(varName string) (int, error) {
	envVar := os.Getenv(varName)
	return strconv.Atoi(envVar)
}

// GetURLOrBail parses rawURL, or exits the process if it is empty or
// invalid. name is the setting the URL comes from.
func GetURLOrBail(name, rawURL string) *url.URL {
	if rawURL == "" {
		slog.Error("no URL configured", "setting", name)
		os.Exit(1)
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		slog.Error("invalid URL", "setting", name, "url", rawURL, "err", err)
		os.Exit(1)
	}
	return parsedURL
}

// SetMaxIdleConnsPerHost sets the MaxIdleConnsPerHost value for the default
// HTTP transport. If you are using a custom transport, calling this function
// won't change anything.
func SetMaxIdleConnsPerHost(maxConns int) {
	http.DefaultTransport.(*http.Transport).MaxIdleConnsPerHost = maxConns
}
