package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TRIP"

type Config struct {
	Env      string `mapstructure:"env"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	QuoteSecret   string        `mapstructure:"quote_secret"`
	QuoteIssuer   string        `mapstructure:"quote_issuer"`
	QuoteTTL      time.Duration `mapstructure:"quote_ttl"`
	PaymentPrefix string        `mapstructure:"payment_prefix"`

	Store         string `mapstructure:"store"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	// Redis is optional; an empty address disables the replay cache.
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	BreakerFails   uint32        `mapstructure:"breaker_fails"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`

	RateLimitPerMin int           `mapstructure:"rate_limit"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		Env:             "dev",
		Port:            5000,
		LogLevel:        "info",
		LogJSON:         true,
		QuoteSecret:     "",
		QuoteIssuer:     "trip-provider",
		QuoteTTL:        15 * time.Minute,
		PaymentPrefix:   "mock_",
		Store:           "memory",
		SQLitePath:      "./data/orders.db",
		MongoDatabase:   "trip",
		CacheTTL:        24 * time.Hour,
		KafkaTopic:      "trip.orders",
		BreakerFails:    5,
		BreakerTimeout:  30 * time.Second,
		RateLimitPerMin: 600,
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load resolves the configuration from, in increasing precedence, defaults,
// the given YAML/JSON files, TRIP_* environment variables and any flags in
// fs the caller changed. Missing files are skipped.
func Load(fs *pflag.FlagSet, files ...string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		v.SetConfigFile(f)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", f, err)
		}
	}

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("env", d.Env)
	v.SetDefault("port", d.Port)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_json", d.LogJSON)
	v.SetDefault("quote_secret", d.QuoteSecret)
	v.SetDefault("quote_issuer", d.QuoteIssuer)
	v.SetDefault("quote_ttl", d.QuoteTTL)
	v.SetDefault("payment_prefix", d.PaymentPrefix)
	v.SetDefault("store", d.Store)
	v.SetDefault("postgres_dsn", d.PostgresDSN)
	v.SetDefault("sqlite_path", d.SQLitePath)
	v.SetDefault("mongo_uri", d.MongoURI)
	v.SetDefault("mongo_database", d.MongoDatabase)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("redis_password", d.RedisPassword)
	v.SetDefault("redis_db", d.RedisDB)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("kafka_brokers", d.KafkaBrokers)
	v.SetDefault("kafka_topic", d.KafkaTopic)
	v.SetDefault("breaker_fails", d.BreakerFails)
	v.SetDefault("breaker_timeout", d.BreakerTimeout)
	v.SetDefault("rate_limit", d.RateLimitPerMin)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
}

func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "development" || c.Env == "test"
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.QuoteSecret == "" && !c.IsDev() {
		errs = append(errs, errors.New("quote secret is required outside dev"))
	}
	if c.QuoteTTL <= 0 {
		errs = append(errs, errors.New("quote ttl must be positive"))
	}
	if strings.TrimSpace(c.PaymentPrefix) == "" {
		errs = append(errs, errors.New("payment prefix must not be empty"))
	}
	switch c.Store {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres store requires a dsn"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite store requires a path"))
		}
	case "mongo":
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("mongo store requires a uri and database"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.RateLimitPerMin < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	return errors.Join(errs...)
}
