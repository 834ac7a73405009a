package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported render engines.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
	EngineExec     = "exec"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "config.yaml"

// DefaultBodyLimitBytes leaves room for brochures with inlined images.
const DefaultBodyLimitBytes = 32 * 1024 * 1024

// PaperSize holds page dimensions in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	Server struct {
		Host           string `yaml:"host"`
		Port           string `yaml:"port"`
		Prefork        bool   `yaml:"prefork"`
		BodyLimitBytes int    `yaml:"body_limit_bytes"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
	} `yaml:"cache"`

	RateLimiter struct {
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
		Interval          time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`

	PDF struct {
		Engine          string               `yaml:"engine"`
		DownloadName    string               `yaml:"download_name"`
		DefaultPaper    string               `yaml:"default_paper"`
		PaperSizes      map[string]PaperSize `yaml:"paper_sizes"`
		Margin          float64              `yaml:"margin"`
		TimeoutSecs     int                  `yaml:"timeout_secs"`
		SettleMillis    int                  `yaml:"settle_ms"`
		ChromePath      string               `yaml:"chrome_path"`
		ChromeNoSandbox bool                 `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int                  `yaml:"chrome_pool_size"`
		UserDataDir     string               `yaml:"user_data_dir"`
		DownloadBrowser bool                 `yaml:"download_browser"`
		ExecCommand     string               `yaml:"exec_command"`
		ExecArgs        []string             `yaml:"exec_args"`
	} `yaml:"pdf"`
}

// Default returns the configuration used for any value the YAML file leaves out.
func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":5000"
	cfg.Server.BodyLimitBytes = DefaultBodyLimitBytes

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 50
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7

	cfg.Cache.PDFCacheTTL = 10 * time.Minute
	cfg.Cache.RedisHost = "127.0.0.1:6379"
	cfg.Cache.PDFCacheDB = 1

	cfg.RateLimiter.Interval = time.Minute

	cfg.PDF.Engine = EngineChromedp
	cfg.PDF.DownloadName = "brochure.pdf"
	cfg.PDF.DefaultPaper = "A4"
	cfg.PDF.PaperSizes = map[string]PaperSize{
		"A4":     {Width: 8.27, Height: 11.69},
		"LETTER": {Width: 8.5, Height: 11},
	}
	cfg.PDF.Margin = 0.4
	cfg.PDF.TimeoutSecs = 30
	cfg.PDF.SettleMillis = 200
	return cfg
}

// Load reads the configuration from CONFIG_PATH, or config.yaml when unset.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the YAML file at path. It panics when the file
// cannot be read or holds invalid values, since the process cannot start sanely.
func LoadFrom(path string) Config {
	cfg, err := parseFile(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadOptional behaves like LoadFrom but returns the defaults (with env
// overrides applied) when no file exists at path.
func LoadOptional(path string) (Config, error) {
	cfg, err := parseFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		applyEnv(&cfg)
		return cfg, cfg.Validate()
	}
	return cfg, err
}

func parseFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// applyEnv lets the common container env var override chrome_path.
func applyEnv(cfg *Config) {
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}
}

// Validate reports the first invalid value found.
func (c Config) Validate() error {
	switch c.PDF.Engine {
	case EngineChromedp, EngineRod:
	case EngineExec:
		if c.PDF.ExecCommand == "" {
			return errors.New("pdf.exec_command is required for the exec engine")
		}
	default:
		return fmt.Errorf("pdf.engine %q is not supported", c.PDF.Engine)
	}
	if _, ok := c.PDF.PaperSizes[c.PDF.DefaultPaper]; !ok {
		return fmt.Errorf("pdf.default_paper %q is not listed in pdf.paper_sizes", c.PDF.DefaultPaper)
	}
	if c.PDF.TimeoutSecs <= 0 {
		return errors.New("pdf.timeout_secs must be positive")
	}
	if c.PDF.ChromePoolSize < 0 {
		return errors.New("pdf.chrome_pool_size must not be negative")
	}
	if c.PDF.Margin < 0 {
		return errors.New("pdf.margin must not be negative")
	}
	if c.PDF.DownloadName == "" {
		return errors.New("pdf.download_name must not be empty")
	}
	if c.RateLimiter.UserLimit < 0 {
		return errors.New("rate_limiter.user_limit must not be negative")
	}
	if c.RateLimiter.EnableUserLimiter && c.RateLimiter.Interval <= 0 {
		return errors.New("rate_limiter.interval must be positive when the user limiter is enabled")
	}
	return nil
}

// Paper returns the default paper size.
func (c Config) Paper() PaperSize {
	return c.PDF.PaperSizes[c.PDF.DefaultPaper]
}

// Timeout returns the bounded render timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.PDF.TimeoutSecs) * time.Second
}
