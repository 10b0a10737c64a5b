package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Compiler CompilerConfig `yaml:"compiler" mapstructure:"compiler"`
	Facts    FactsConfig    `yaml:"facts" mapstructure:"facts"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// SearchConfig configures the search engine connection.
type SearchConfig struct {
	URL             string  `yaml:"url" mapstructure:"url"`
	Index           string  `yaml:"index" mapstructure:"index"`
	DocType         string  `yaml:"doc_type" mapstructure:"doc_type"`
	Username        string  `yaml:"username" mapstructure:"username"`
	Password        string  `yaml:"password" mapstructure:"password"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ScrollKeepAlive string  `yaml:"scroll_keep_alive" mapstructure:"scroll_keep_alive"`
	PageSize        int     `yaml:"page_size" mapstructure:"page_size"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst       int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// Timeout returns the per-request timeout.
func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CompilerConfig selects query compiler behavior.
type CompilerConfig struct {
	IncludeFactsInMinShouldMatch bool   `yaml:"include_facts_in_min_should_match" mapstructure:"include_facts_in_min_should_match"`
	HighlightPreTag              string `yaml:"highlight_pre_tag" mapstructure:"highlight_pre_tag"`
	HighlightPostTag             string `yaml:"highlight_post_tag" mapstructure:"highlight_post_tag"`
	InnerHitsSize                int    `yaml:"inner_hits_size" mapstructure:"inner_hits_size"`
}

// FactsConfig configures fact aggregation and highlighting.
type FactsConfig struct {
	AggregationSize int    `yaml:"aggregation_size" mapstructure:"aggregation_size"`
	FactColor       string `yaml:"fact_color" mapstructure:"fact_color"`
	FactValueColor  string `yaml:"fact_value_color" mapstructure:"fact_value_color"`
}

// CacheConfig configures the synonym cache.
type CacheConfig struct {
	Limit      int `yaml:"limit" mapstructure:"limit"`
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// StoreConfig configures the lexicon database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ExportConfig configures CSV export.
type ExportConfig struct {
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FACTSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("search.url", "http://localhost:9200")
	v.SetDefault("search.index", "texta")
	v.SetDefault("search.timeout_secs", 60)
	v.SetDefault("search.scroll_keep_alive", "1m")
	v.SetDefault("search.page_size", 100)
	v.SetDefault("search.rate_limit", 0)
	v.SetDefault("search.rate_burst", 1)
	v.SetDefault("compiler.include_facts_in_min_should_match", false)
	v.SetDefault("compiler.inner_hits_size", 100)
	v.SetDefault("facts.aggregation_size", 10000)
	v.SetDefault("facts.fact_color", "#D6E4FF")
	v.SetDefault("facts.fact_value_color", "#C8F0C8")
	v.SetDefault("cache.limit", 10000)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "factsearch.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("export.page_size", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "search" (engine commands), "store" (lexicon commands) and "serve"
// (both, plus the HTTP listener). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkSearch := func() {
		if c.Search.URL == "" {
			errs = append(errs, "search.url is required")
		}
		if c.Search.Index == "" {
			errs = append(errs, "search.index is required")
		}
		if c.Search.PageSize < 1 {
			errs = append(errs, "search.page_size must be > 0")
		}
		if c.Search.RateLimit < 0 {
			errs = append(errs, "search.rate_limit must be >= 0")
		}
		if c.Facts.AggregationSize < 1 {
			errs = append(errs, "facts.aggregation_size must be > 0")
		}
		if c.Export.PageSize < 1 {
			errs = append(errs, "export.page_size must be > 0")
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "search":
		checkSearch()
	case "store":
		checkStore()
	case "serve":
		checkSearch()
		checkStore()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
