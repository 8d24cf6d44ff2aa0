package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/imagehub/internal/adapters/out/telemetry"
)

// Cache backends.
const (
	CacheStarskey  = "starskey"
	CacheMemcached = "memcached"
	CacheNone      = "none"
)

// Config holds the application configuration.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Registry struct {
		URL             string        `mapstructure:"url"`
		Insecure        bool          `mapstructure:"insecure"`
		Username        string        `mapstructure:"username"`
		Password        string        `mapstructure:"password"`
		Timeout         time.Duration `mapstructure:"timeout"`
		MaxRetries      uint          `mapstructure:"max_retries"`
		RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
	} `mapstructure:"registry"`

	Daemon struct {
		Host    string        `mapstructure:"host"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"daemon"`

	Database struct {
		Path string `mapstructure:"path"` // defaults to {data_dir}/imagehub.db
	} `mapstructure:"database"`

	Cache struct {
		Backend   string `mapstructure:"backend"`
		Bucket    string `mapstructure:"bucket"`
		Dir       string `mapstructure:"dir"` // defaults to {data_dir}/cache
		Memcached struct {
			Servers []string      `mapstructure:"servers"`
			Timeout time.Duration `mapstructure:"timeout"`
		} `mapstructure:"memcached"`
	} `mapstructure:"cache"`

	Sync struct {
		Interval        time.Duration `mapstructure:"interval"`
		BackfillDigests bool          `mapstructure:"backfill_digests"`
	} `mapstructure:"sync"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   struct {
			Path       string `mapstructure:"path"` // empty logs to stderr only
			MaxSize    int    `mapstructure:"max_size"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAge     int    `mapstructure:"max_age"`
			Compress   bool   `mapstructure:"compress"`
		} `mapstructure:"file"`
	} `mapstructure:"logging"`

	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// LoadConfig reads configuration from configPath (or the default search paths)
// and the IMAGEHUB_* environment, then fills derived paths.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "imagehub.db")
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(cfg.DataDir, "cache")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Registry.URL) == "" {
		errs = append(errs, errors.New("registry.url is required"))
	}
	switch c.Cache.Backend {
	case CacheStarskey, CacheNone:
	case CacheMemcached:
		if len(c.Cache.Memcached.Servers) == 0 {
			errs = append(errs, errors.New("cache.memcached.servers is required for the memcached backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, errors.New("sync.interval must not be negative"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// loadConfig loads configuration from file and sets defaults.
func loadConfig(v *viper.Viper, configPath string) error {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("registry.url", "")
	v.SetDefault("registry.insecure", false)
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")
	v.SetDefault("registry.timeout", "30s")
	v.SetDefault("registry.max_retries", 3)
	v.SetDefault("registry.retry_max_elapsed", "1m")
	v.SetDefault("daemon.host", "")
	v.SetDefault("daemon.timeout", "10m")
	v.SetDefault("database.path", "") // defaults to {data_dir}/imagehub.db when empty
	v.SetDefault("cache.backend", CacheStarskey)
	v.SetDefault("cache.bucket", "imagehub:repository:image")
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.memcached.servers", []string{})
	v.SetDefault("cache.memcached.timeout", "250ms")
	v.SetDefault("sync.interval", "0s")
	v.SetDefault("sync.backfill_digests", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("logging.file.compress", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.auth_token", "")

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("IMAGEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}
