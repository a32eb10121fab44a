package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Guard   GuardConfig   `yaml:"guard" mapstructure:"guard"`
	Rank    RankConfig    `yaml:"rank" mapstructure:"rank"`
}

// StoreConfig configures the track store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// PublicBaseURL is the page share links point at. Empty derives it from
	// the request host.
	PublicBaseURL string `yaml:"public_base_url" mapstructure:"public_base_url"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" mapstructure:"trust_proxy_headers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeocodeConfig configures the geocoding providers, tried in the order
// census, nominatim, google.
type GeocodeConfig struct {
	RequestTimeoutSecs int             `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	Census             CensusConfig    `yaml:"census" mapstructure:"census"`
	Nominatim          NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Google             GoogleConfig    `yaml:"google" mapstructure:"google"`
	Circuit            CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
}

// CensusConfig holds US Census geocoder settings.
type CensusConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Benchmark string `yaml:"benchmark" mapstructure:"benchmark"`
	Vintage   string `yaml:"vintage" mapstructure:"vintage"`
	DelaysMs  []int  `yaml:"delays_ms" mapstructure:"delays_ms"`
}

// NominatimConfig holds OpenStreetMap Nominatim settings.
type NominatimConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	Email     string  `yaml:"email" mapstructure:"email"`
	DelaysMs  []int   `yaml:"delays_ms" mapstructure:"delays_ms"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// GoogleConfig holds Google Geocoding API settings. The provider is only
// enabled when APIKey is set.
type GoogleConfig struct {
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	DelaysMs []int  `yaml:"delays_ms" mapstructure:"delays_ms"`
}

// CircuitConfig configures the per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// GuardConfig configures admission control and result caching.
type GuardConfig struct {
	RateLimitMaxRequests int `yaml:"rate_limit_max_requests" mapstructure:"rate_limit_max_requests"`
	RateLimitWindowSecs  int `yaml:"rate_limit_window_secs" mapstructure:"rate_limit_window_secs"`
	CacheTTLSecs         int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheMaxItems        int `yaml:"cache_max_items" mapstructure:"cache_max_items"`
}

// RankConfig sizes the ranking step.
type RankConfig struct {
	TopK           int `yaml:"top_k" mapstructure:"top_k"`
	CandidateLimit int `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	// CorridorSegments is the number of segments per quarter circle in the
	// corridor outline.
	CorridorSegments int `yaml:"corridor_segments" mapstructure:"corridor_segments"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TORNADO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a meaningful default are still registered so
	// AutomaticEnv can populate them.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_secs", 60)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.public_base_url", "")
	v.SetDefault("server.trust_proxy_headers", false)
	v.SetDefault("geocode.request_timeout_secs", 20)
	v.SetDefault("geocode.census.base_url", "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress")
	v.SetDefault("geocode.census.benchmark", "Public_AR_Current")
	v.SetDefault("geocode.census.vintage", "Current_Current")
	v.SetDefault("geocode.census.delays_ms", []int{0, 500, 1000, 2000, 4000})
	v.SetDefault("geocode.nominatim.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.nominatim.user_agent", "closest-tornado (+https://github.com/sells-group/closest-tornado)")
	v.SetDefault("geocode.nominatim.email", "")
	v.SetDefault("geocode.nominatim.delays_ms", []int{0, 500, 1000, 2000})
	v.SetDefault("geocode.nominatim.rps", 1.0)
	v.SetDefault("geocode.google.api_key", "")
	v.SetDefault("geocode.google.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.google.delays_ms", []int{0, 500, 1000})
	v.SetDefault("geocode.circuit.failure_threshold", 3)
	v.SetDefault("geocode.circuit.reset_timeout_secs", 60)
	v.SetDefault("guard.rate_limit_max_requests", 30)
	v.SetDefault("guard.rate_limit_window_secs", 60)
	v.SetDefault("guard.cache_ttl_secs", 21600)
	v.SetDefault("guard.cache_max_items", 5000)
	v.SetDefault("rank.top_k", 5)
	v.SetDefault("rank.candidate_limit", 250)
	v.SetDefault("rank.corridor_segments", 8)

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

// Validate checks the settings a command needs. mode is one of "serve",
// "lookup", "migrate" or "seed".
func (c *Config) Validate(mode string) error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	switch mode {
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return eris.Errorf("config: server.port %d out of range", c.Server.Port)
		}
		fallthrough
	case "lookup":
		if c.Geocode.Nominatim.UserAgent == "" {
			return eris.New("config: geocode.nominatim.user_agent is required")
		}
		if c.Rank.TopK < 1 {
			return eris.Errorf("config: rank.top_k must be positive, got %d", c.Rank.TopK)
		}
		if c.Rank.CandidateLimit < c.Rank.TopK {
			return eris.Errorf("config: rank.candidate_limit %d is below rank.top_k %d", c.Rank.CandidateLimit, c.Rank.TopK)
		}
		if c.Rank.CorridorSegments < 0 {
			return eris.Errorf("config: rank.corridor_segments must not be negative, got %d", c.Rank.CorridorSegments)
		}
	case "migrate", "seed":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}
	return nil
}

// SQLitePath is the database file used by the sqlite driver.
func (c *Config) SQLitePath() string {
	if c.Store.DatabaseURL == "" {
		return "closest-tornado.db"
	}
	return c.Store.DatabaseURL
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
