// Package config loads engine settings from an optional YAML file, a .env
// file and HARVESTER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/fetcher"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/internal/session"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "HARVESTER"

// Config is the engine configuration shared by every site run.
type Config struct {
	DataDir           string `mapstructure:"data_dir"`
	ProvidersFile     string `mapstructure:"providers_file"`
	PublishersFile    string `mapstructure:"publishers_file"`
	Mode              string `mapstructure:"mode"`
	BatchSize         int    `mapstructure:"batch_size"`
	PersistThumbnails bool   `mapstructure:"persist_thumbnails"`

	HTTP    HTTPConfig    `mapstructure:"http"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Browser BrowserConfig `mapstructure:"browser"`
	Log     LogConfig     `mapstructure:"log"`
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

type BrowserConfig struct {
	Headless  bool          `mapstructure:"headless"`
	Wait      time.Duration `mapstructure:"wait"`
	SessionDB string        `mapstructure:"session_db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("providers_file", "providers.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("mode", string(domain.ModeUpdate))
	v.SetDefault("batch_size", 200)
	v.SetDefault("persist_thumbnails", false)

	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.user_agent", "")

	retry := fetcher.DefaultRetryPolicy()
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", retry.MaxBackoff)
	v.SetDefault("retry.multiplier", retry.Multiplier)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.wait", "2s")
	v.SetDefault("browser.session_db", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the engine configuration. path may be empty, in which case only
// defaults, .env and the environment apply. A named file that cannot be read
// is an error.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config %s: %w", domain.ErrFatalConfig, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %w", domain.ErrFatalConfig, err)
	}
	cfg = sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv exports variables from a .env file without overriding the
// environment. A missing file is ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: load %s: %w", domain.ErrFatalConfig, path, err)
}

func sanitize(cfg Config) Config {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.ProvidersFile = strings.TrimSpace(cfg.ProvidersFile)
	cfg.PublishersFile = strings.TrimSpace(cfg.PublishersFile)
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if strings.TrimSpace(cfg.Browser.SessionDB) == "" && cfg.DataDir != "" {
		cfg.Browser.SessionDB = filepath.Join(cfg.DataDir, "sessions.db")
	}
	return cfg
}

// Validate reports settings no run could proceed with.
func (c Config) Validate() error {
	var problems []string
	if c.DataDir == "" {
		problems = append(problems, "data_dir is empty")
	}
	if _, ok := domain.ParseRunMode(c.Mode); !ok {
		problems = append(problems, fmt.Sprintf("mode %q is not full or update", c.Mode))
	}
	if c.BatchSize < 1 {
		problems = append(problems, "batch_size must be at least 1")
	}
	if c.HTTP.Timeout <= 0 {
		problems = append(problems, "http.timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		problems = append(problems, "retry.max_backoff is below retry.initial_backoff")
	}
	if c.Retry.Multiplier < 1 {
		problems = append(problems, "retry.multiplier must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrFatalConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RunMode returns the configured default mode.
func (c Config) RunMode() domain.RunMode {
	mode, _ := domain.ParseRunMode(c.Mode)
	return mode
}

func (c Config) RetryPolicy() fetcher.RetryPolicy {
	return fetcher.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: c.Retry.InitialBackoff,
		MaxBackoff:     c.Retry.MaxBackoff,
		Multiplier:     c.Retry.Multiplier,
	}
}

// FetcherOptions builds the fetch client settings. sessions may be nil when
// no descriptor uses the browser client.
func (c Config) FetcherOptions(log logger.Logger, sessions *session.Store) fetcher.Options {
	return fetcher.Options{
		Timeout:     c.HTTP.Timeout,
		UserAgent:   c.HTTP.UserAgent,
		Retry:       c.RetryPolicy(),
		Headless:    c.Browser.Headless,
		BrowserWait: c.Browser.Wait,
		Sessions:    sessions,
		Log:         log,
	}
}

func (c Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.Log.Level, Format: c.Log.Format}
}
