package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
	Redis     RedisConfig     `json:"redis" mapstructure:"redis"`
	Session   SessionConfig   `json:"session" mapstructure:"session"`
	Limits    LimitsConfig    `json:"limits" mapstructure:"limits"`
	OpenAI    OpenAIConfig    `json:"openai" mapstructure:"openai"`
	Google    GoogleConfig    `json:"google" mapstructure:"google"`
	Weather   WeatherConfig   `json:"weather" mapstructure:"weather"`
	Currency  CurrencyConfig  `json:"currency" mapstructure:"currency"`
	Stripe    StripeConfig    `json:"stripe" mapstructure:"stripe"`
	Auth      AuthConfig      `json:"auth" mapstructure:"auth"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `json:"host" mapstructure:"host"`
	Port        int    `json:"port" mapstructure:"port"`
	CORSOrigins string `json:"cors_origins" mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Driver   string `json:"driver" mapstructure:"driver"` // "postgres" (lib/pq) or "pgx"
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

// StorageConfig selects the backend that holds per-client state.
type StorageConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // memory, redis, postgres
}

type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

type SessionConfig struct {
	AbsoluteTimeout   time.Duration `json:"absolute_timeout" mapstructure:"absolute_timeout"`
	InactivityTimeout time.Duration `json:"inactivity_timeout" mapstructure:"inactivity_timeout"`
	WarningBefore     time.Duration `json:"warning_before" mapstructure:"warning_before"`
}

// LimitsConfig holds the free-tier prompt ceilings.
type LimitsConfig struct {
	LimitedStage    int `json:"limited_stage" mapstructure:"limited_stage"`
	MaxStagePrompts int `json:"max_stage_prompts" mapstructure:"max_stage_prompts"`
	MaxTotalPrompts int `json:"max_total_prompts" mapstructure:"max_total_prompts"`
}

type OpenAIConfig struct {
	APIKey      string  `json:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url,omitempty" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float32 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

type GoogleConfig struct {
	MapsAPIKey    string        `json:"maps_api_key,omitempty" mapstructure:"maps_api_key"`
	PlacesBaseURL string        `json:"places_base_url" mapstructure:"places_base_url"`
	RoutesBaseURL string        `json:"routes_base_url" mapstructure:"routes_base_url"`
	SearchTimeout time.Duration `json:"search_timeout" mapstructure:"search_timeout"`
	RatePerSecond float64       `json:"rate_per_second" mapstructure:"rate_per_second"`
}

type WeatherConfig struct {
	APIKey  string `json:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

type CurrencyConfig struct {
	APIKey  string `json:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

type StripeConfig struct {
	SecretKey string `json:"secret_key,omitempty" mapstructure:"secret_key"`
}

type AuthConfig struct {
	TokenSecret string        `json:"token_secret,omitempty" mapstructure:"token_secret"`
	TokenTTL    time.Duration `json:"token_ttl" mapstructure:"token_ttl"`
	Issuer      string        `json:"issuer" mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"` // text or json
}

// Load reads config.json (if any), applies defaults and environment overrides.
func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".travelplanner"))
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", "http://localhost:3000,http://localhost:5173")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "travel")
	v.SetDefault("database.database", "travel")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("storage.driver", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.absolute_timeout", 24*time.Hour)
	v.SetDefault("session.inactivity_timeout", 2*time.Hour)
	v.SetDefault("session.warning_before", 5*time.Minute)

	v.SetDefault("limits.limited_stage", 3)
	v.SetDefault("limits.max_stage_prompts", 5)
	v.SetDefault("limits.max_total_prompts", 15)

	v.SetDefault("openai.model", "gpt-4")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.max_tokens", 2000)

	v.SetDefault("google.places_base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.routes_base_url", "https://routes.googleapis.com")
	v.SetDefault("google.search_timeout", 8*time.Second)
	v.SetDefault("google.rate_per_second", 10.0)

	v.SetDefault("weather.base_url", "https://api.openweathermap.org/data/3.0/onecall/day_summary")
	v.SetDefault("currency.base_url", "https://api.freecurrencyapi.com/v1/latest")

	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("auth.issuer", "travel-planner")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func loadEnvOverrides(cfg *Config) {
	if host := os.Getenv("TRAVEL_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("TRAVEL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if origins := os.Getenv("TRAVEL_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = origins
	}
	if driver := os.Getenv("TRAVEL_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = strings.ToLower(driver)
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
		cfg.Database.Enabled = true
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if addr := os.Getenv("REDIS_URL"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	// API keys
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if key := os.Getenv("GOOGLE_MAPS_API_KEY"); key != "" {
		cfg.Google.MapsAPIKey = key
	}
	if key := os.Getenv("OPENWEATHER_API_KEY"); key != "" {
		cfg.Weather.APIKey = key
	}
	if key := os.Getenv("FREECURRENCY_API_KEY"); key != "" {
		cfg.Currency.APIKey = key
	}
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := os.Getenv("TRAVEL_TOKEN_SECRET"); secret != "" {
		cfg.Auth.TokenSecret = secret
	}
	if level := os.Getenv("TRAVEL_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}
