// Package config assembles the answerbot configuration from defaults, an
// optional YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/answerbot/internal/answerer"
	"github.com/abhisek/answerbot/internal/engine"
	"github.com/abhisek/answerbot/internal/llm"
	"github.com/abhisek/answerbot/internal/logging"
	"github.com/abhisek/answerbot/internal/search"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config holds all answerbot configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Store    StoreConfig     `yaml:"store"`
	LLM      llm.Config      `yaml:"llm"`
	Answerer answerer.Config `yaml:"answerer"`
	Search   search.Config   `yaml:"search"`
	Engine   engine.Config   `yaml:"engine"`
	Log      logging.Config  `yaml:"log"`
}

// ServerConfig controls the HTTP endpoint.
type ServerConfig struct {
	Listen string `yaml:"listen"`

	// SkipCache makes every request bypass the answer cache.
	SkipCache bool `yaml:"skip_cache"`

	// RequestTimeout bounds one resolution, retries included.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Mode is the gin mode: debug, release or test.
	Mode string `yaml:"mode"`
}

// StoreConfig selects and configures the answer store.
type StoreConfig struct {
	Driver      string        `yaml:"driver"`
	Path        string        `yaml:"path"` // SQLite file; "" resolves the default data path
	RedisURL    string        `yaml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix"`
	MemoryTTL   time.Duration `yaml:"memory_ttl"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         ":5000",
			RequestTimeout: 2 * time.Minute,
			Mode:           "release",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		LLM:      llm.DefaultConfig(),
		Answerer: answerer.DefaultConfig(),
		Search: search.Config{
			BaseURL:    search.DefaultBaseURL,
			NumResults: search.DefaultNumResults,
			Timeout:    search.DefaultTimeout,
		},
		Engine: engine.DefaultConfig(),
		Log:    logging.DefaultConfig(),
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first so its values are visible to both the YAML expansion and the
// environment overlay. path may be empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables. The ANSWERBOT_* names win over
// the legacy names.
func (c *Config) ApplyEnv() error {
	c.LLM.ApplyEnv()

	if port := os.Getenv("LISTEN_PORT"); port != "" {
		c.Server.Listen = ":" + port
	}
	setString(&c.Server.Listen, "ANSWERBOT_LISTEN")
	setString(&c.Server.Mode, "GIN_MODE", "ANSWERBOT_GIN_MODE")

	setString(&c.Store.Driver, "ANSWERBOT_STORE")
	setString(&c.Store.Path, "ANSWERBOT_DB")
	setString(&c.Store.RedisURL, "REDIS_URL", "ANSWERBOT_REDIS_URL")

	setString(&c.Search.APIKey, "EXA_API_KEY", "ANSWERBOT_EXA_API_KEY")
	setString(&c.Search.BaseURL, "EXA_BASE_URL", "ANSWERBOT_EXA_BASE_URL")

	setString(&c.Log.Level, "ANSWERBOT_LOG_LEVEL")
	setString(&c.Log.File, "ANSWERBOT_LOG_FILE")

	var errs []error
	errs = append(errs,
		setFloat(&c.Engine.ConfidenceThreshold, "CONFIDENCE_THRESHOLD", "ANSWERBOT_CONFIDENCE_THRESHOLD"),
		setFloat(&c.Engine.RetryProbability, "ANSWERBOT_RETRY_PROBABILITY"),
		setInt(&c.Engine.MaxAttempts, "ANSWERBOT_MAX_ATTEMPTS"),
		setBool(&c.Engine.IncludeTypeInKey, "ANSWERBOT_INCLUDE_TYPE_IN_KEY"),
		setBool(&c.Server.SkipCache, "ANSWERBOT_SKIP_CACHE"),
	)
	return errors.Join(errs...)
}

// Validate rejects out-of-range values. It does not require an LLM key, so
// maintenance commands work without one.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store: redis driver requires redis_url")
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	if c.Search.NumResults < 0 {
		return fmt.Errorf("search: num_results must not be negative")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server: request_timeout must not be negative")
	}
	return nil
}

func lookup(names ...string) (string, bool) {
	var (
		val   string
		found bool
	)
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			val, found = v, true
		}
	}
	return val, found
}

func setString(dst *string, names ...string) {
	if v, ok := lookup(names...); ok {
		*dst = v
	}
}

func setFloat(dst *float64, names ...string) error {
	v, ok := lookup(names...)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %q is not a number", names[len(names)-1], v)
	}
	*dst = f
	return nil
}

func setInt(dst *int, names ...string) error {
	v, ok := lookup(names...)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", names[len(names)-1], v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, names ...string) error {
	v, ok := lookup(names...)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", names[len(names)-1], v)
	}
	*dst = b
	return nil
}
