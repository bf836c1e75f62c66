package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/minbak/hearth/internal/provider/openai"
)

// Config represents the service configuration. Everything is loaded once at
// startup and immutable afterwards.
type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	OpenAI  openai.Config
	Storage StorageConfig
	Images  ImagesConfig
	Pricing PricingConfig
	Redis   RedisConfig
	Chat    ChatConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"120"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// StorageConfig contains relational store settings. The default is a local
// SQLite file; Postgres is selected with DB_DRIVER=postgres and a pgx DSN.
type StorageConfig struct {
	Driver        string `env:"DB_DRIVER"         envDefault:"sqlite"`
	DSN           string `env:"DB_DSN"            envDefault:"file:hearth.db?_pragma=busy_timeout(5000)"`
	AutoMigrate   bool   `env:"DB_AUTO_MIGRATE"   envDefault:"true"`
	MigrationsDir string `env:"DB_MIGRATIONS_DIR" envDefault:"migrations"`
}

// ImagesConfig contains generated-image file storage settings.
type ImagesConfig struct {
	Dir      string `env:"IMAGES_DIR"       envDefault:"data/images"`
	BasePath string `env:"IMAGES_BASE_PATH" envDefault:"/images"`
}

// PricingConfig contains cost accounting settings. ExchangeRate is the fixed
// KRW-per-USD rate used for the display figure.
type PricingConfig struct {
	DefaultModel string  `env:"PRICING_DEFAULT_MODEL" envDefault:"gpt-4o"`
	ExchangeRate float64 `env:"PRICING_EXCHANGE_RATE" envDefault:"1400"`
}

// RedisConfig contains reply cache settings. The cache is disabled when Addr
// is empty.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"        envDefault:"0"`
	TTL      int    `env:"REDIS_REPLY_TTL" envDefault:"3600"` // seconds
}

// ChatConfig contains chat dispatch settings.
type ChatConfig struct {
	HistoryLimit int `env:"CHAT_HISTORY_LIMIT" envDefault:"50"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*openai.Config
	*StorageConfig
	*ImagesConfig
	*PricingConfig
	*RedisConfig
	*ChatConfig
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.OpenAI,
		&cfg.Storage,
		&cfg.Images,
		&cfg.Pricing,
		&cfg.Redis,
		&cfg.Chat,
	}
}
