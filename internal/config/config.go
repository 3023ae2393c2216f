package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// PDS is the base URL of the account's personal data server.
	PDS string

	// Handle and Password are the login credentials. Password should be an
	// App Password.
	Handle   string
	Password string

	// Limit caps the number of posts fetched. Zero means all posts.
	Limit int

	// PageDelay is the pause between listRecords pages.
	PageDelay time.Duration

	// OutputDir receives the charts; OutputPrefix names the table and report
	// files.
	OutputDir    string
	OutputPrefix string

	// Format is the report file format: json or yaml.
	Format string

	// Charts enables PNG chart rendering.
	Charts bool

	// DatabasePath is the SQLite file used by watch, serve and regenerate.
	DatabasePath string

	// FirehoseURL is the Jetstream WebSocket endpoint.
	FirehoseURL string

	// Port is the HTTP server port.
	Port int

	// Refresh is a cron spec for periodic re-fetching in serve. Empty
	// disables it.
	Refresh string

	LogLevel  string
	LogFormat string
	Quiet     bool
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pds", "https://bsky.social")
	v.SetDefault("limit", 0)
	v.SetDefault("page-delay", 100*time.Millisecond)
	v.SetDefault("output-dir", "bluesky_analysis")
	v.SetDefault("output-prefix", "bluesky_analysis")
	v.SetDefault("format", "json")
	v.SetDefault("charts", true)
	v.SetDefault("db", "bluesky_analysis.db")
	v.SetDefault("firehose-url", "wss://jetstream1.us-east.bsky.network/subscribe")
	v.SetDefault("port", 3000)
	v.SetDefault("refresh", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("quiet", false)
}

// ReadIn loads .env, then the config file (cfgFile, or config.yaml from the
// working directory or $HOME/.bluesky-analyzer), then environment variables.
// A missing config file is not an error.
func ReadIn(v *viper.Viper, cfgFile string) error {
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.bluesky-analyzer")
		}
	}

	v.SetEnvPrefix("BSKY_ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// The publish tool's variable names are honoured too.
	_ = v.BindEnv("handle", "BSKY_ANALYZER_HANDLE", "BLUESKY_HANDLE")
	_ = v.BindEnv("password", "BSKY_ANALYZER_PASSWORD", "BLUESKY_APP_PASSWORD")
	_ = v.BindEnv("pds", "BSKY_ANALYZER_PDS", "BLUESKY_PDS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if cfgFile == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		PDS:          strings.TrimRight(v.GetString("pds"), "/"),
		Handle:       v.GetString("handle"),
		Password:     v.GetString("password"),
		Limit:        v.GetInt("limit"),
		PageDelay:    v.GetDuration("page-delay"),
		OutputDir:    v.GetString("output-dir"),
		OutputPrefix: v.GetString("output-prefix"),
		Format:       strings.ToLower(v.GetString("format")),
		Charts:       v.GetBool("charts"),
		DatabasePath: v.GetString("db"),
		FirehoseURL:  v.GetString("firehose-url"),
		Port:         v.GetInt("port"),
		Refresh:      v.GetString("refresh"),
		LogLevel:     strings.ToLower(v.GetString("log-level")),
		LogFormat:    strings.ToLower(v.GetString("log-format")),
		Quiet:        v.GetBool("quiet"),
	}

	if cfg.PDS == "" {
		return nil, fmt.Errorf("pds is required")
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("invalid limit %d: must be zero or positive", cfg.Limit)
	}
	if cfg.PageDelay <= 0 {
		return nil, fmt.Errorf("invalid page-delay %s: must be positive", cfg.PageDelay)
	}
	if cfg.Format != "json" && cfg.Format != "yaml" {
		return nil, fmt.Errorf("invalid format %q: must be json or yaml", cfg.Format)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be text or json", cfg.LogFormat)
	}

	return cfg, nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log-level %q", c.LogLevel)
	}
}

// NewLogger creates the application logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.Level()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
