package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/retry"
	"github.com/richinex/inkwell/storage"
	"github.com/richinex/inkwell/tools"
)

// EnvPrefix prefixes environment overrides of App keys, e.g.
// INKWELL_SERVER_PORT or INKWELL_SESSION_BACKEND.
const EnvPrefix = "INKWELL"

// App holds the server-side settings.
type App struct {
	Server  ServerConfig   `mapstructure:"server"`
	Session SessionConfig  `mapstructure:"session"`
	Search  SearchConfig   `mapstructure:"search"`
	Scrape  ScrapeConfig   `mapstructure:"scrape"`
	Retry   RetryConfig    `mapstructure:"retry"`
	Tracing TracingConfig  `mapstructure:"tracing"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Logging logging.Config `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// SessionConfig selects the workflow session store.
type SessionConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory sqlite postgres mysql redis"`
	DSN     string        `mapstructure:"dsn" validate:"required_unless=Backend memory"`
	Table   string        `mapstructure:"table" validate:"required"`
	TTL     time.Duration `mapstructure:"ttl" validate:"min=0"`
}

type SearchConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=tavily news"`
	MaxTokens     int    `mapstructure:"max_tokens" validate:"min=0"`
	MaxResults    int    `mapstructure:"max_results" validate:"min=1"`
	Depth         string `mapstructure:"depth" validate:"oneof=basic advanced"`
	IncludeAnswer bool   `mapstructure:"include_answer"`
}

// ScrapeConfig picks how the blog pipeline reads articles: "agent" asks the
// scraper persona, "direct" fetches with read_article and no model.
type ScrapeConfig struct {
	Mode     string        `mapstructure:"mode" validate:"oneof=agent direct"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=0"`
	MaxChars int           `mapstructure:"max_chars" validate:"min=0"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=1"`
	Strategy        string        `mapstructure:"strategy" validate:"oneof=none constant exponential"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"min=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"min=0"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter" validate:"oneof=stdout otlp"`
	Endpoint     string  `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`
	ServiceName  string  `mapstructure:"service_name" validate:"required"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultApp serves on :7777 with the blog generator's sqlite file.
func DefaultApp() App {
	return App{
		Server: ServerConfig{Host: "", Port: 7777},
		Session: SessionConfig{
			Backend: "sqlite",
			DSN:     "tmp/blog_generator.db",
			Table:   storage.DefaultSessionTable,
		},
		Search: SearchConfig{
			Backend:       "tavily",
			MaxTokens:     100,
			MaxResults:    5,
			Depth:         "basic",
			IncludeAnswer: true,
		},
		Scrape: ScrapeConfig{Mode: "agent"},
		Retry: RetryConfig{
			MaxAttempts:     retry.DefaultMaxAttempts,
			Strategy:        string(retry.StrategyNone),
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
		},
		Tracing: TracingConfig{
			Exporter:     "stdout",
			ServiceName:  "inkwell",
			SamplingRate: 1,
		},
		Metrics: MetricsConfig{Enabled: true},
		Logging: logging.DefaultConfig(),
	}
}

// LoadApp reads path (YAML, JSON or TOML) over the defaults and applies
// INKWELL_ environment overrides. An empty path loads defaults and
// environment only.
func LoadApp(path string) (App, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultApp())

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return App{}, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return App{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	app := DefaultApp()
	if err := v.Unmarshal(&app); err != nil {
		return App{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := app.Validate(); err != nil {
		return App{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return app, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// the file does not mention.
func setDefaults(v *viper.Viper, d App) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("session.backend", d.Session.Backend)
	v.SetDefault("session.dsn", d.Session.DSN)
	v.SetDefault("session.table", d.Session.Table)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("search.backend", d.Search.Backend)
	v.SetDefault("search.max_tokens", d.Search.MaxTokens)
	v.SetDefault("search.max_results", d.Search.MaxResults)
	v.SetDefault("search.depth", d.Search.Depth)
	v.SetDefault("search.include_answer", d.Search.IncludeAnswer)
	v.SetDefault("scrape.mode", d.Scrape.Mode)
	v.SetDefault("scrape.timeout", d.Scrape.Timeout)
	v.SetDefault("scrape.max_chars", d.Scrape.MaxChars)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.strategy", d.Retry.Strategy)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
}

// Validate checks the struct tags plus the cross-field rules tags cannot
// express.
func (a *App) Validate() error {
	if err := validator.New().Struct(a); err != nil {
		return err
	}
	if a.Logging.Output == "file" && a.Logging.FilePath == "" {
		return errors.New("logging.file_path is required when logging.output is file")
	}
	if a.Retry.MaxInterval > 0 && a.Retry.MaxInterval < a.Retry.InitialInterval {
		return errors.New("retry.max_interval must not be below retry.initial_interval")
	}
	return nil
}

// Addr is the server listen address.
func (a App) Addr() string {
	return net.JoinHostPort(a.Server.Host, strconv.Itoa(a.Server.Port))
}

// SessionOptions converts the session section for storage.OpenSessionStore.
func (a App) SessionOptions() storage.SessionOptions {
	return storage.SessionOptions{
		Backend: a.Session.Backend,
		DSN:     a.Session.DSN,
		Table:   a.Session.Table,
		TTL:     a.Session.TTL,
	}
}

// RetryPolicy converts the retry section.
func (a App) RetryPolicy() (retry.Policy, error) {
	strategy, err := retry.ParseStrategy(a.Retry.Strategy)
	if err != nil {
		return retry.Policy{}, err
	}
	return retry.Policy{
		MaxAttempts:     a.Retry.MaxAttempts,
		Strategy:        strategy,
		InitialInterval: a.Retry.InitialInterval,
		MaxInterval:     a.Retry.MaxInterval,
	}, nil
}

// SearchTool builds the configured search tool. Tavily without
// TAVILY_API_KEY falls back to the news feed.
func (a App) SearchTool() tools.Tool {
	cfg := tools.DefaultTavilyConfig()
	cfg.SearchDepth = a.Search.Depth
	cfg.IncludeAnswer = a.Search.IncludeAnswer
	cfg.MaxTokens = a.Search.MaxTokens
	cfg.MaxResults = a.Search.MaxResults
	return tools.NewSearchTool(a.Search.Backend, cfg)
}

// ScrapeTool builds read_article; zero limits take the tool defaults.
func (a App) ScrapeTool() *tools.ArticleScrapeTool {
	return tools.NewArticleScrapeTool(a.Scrape.Timeout, a.Scrape.MaxChars)
}

// DirectScrape reports whether articles are fetched without a model.
func (a App) DirectScrape() bool { return a.Scrape.Mode == "direct" }

// TracingConfig converts the tracing section.
func (a App) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:      a.Tracing.Enabled,
		Exporter:     a.Tracing.Exporter,
		Endpoint:     a.Tracing.Endpoint,
		ServiceName:  a.Tracing.ServiceName,
		SamplingRate: a.Tracing.SamplingRate,
	}
}
