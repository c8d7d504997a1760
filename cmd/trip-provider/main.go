package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"trip-provider/internal/config"
	"trip-provider/internal/env"
	"trip-provider/internal/infrastructure/events"
	"trip-provider/internal/infrastructure/payment"
	"trip-provider/internal/infrastructure/repo"
	"trip-provider/internal/logging"
	"trip-provider/internal/pricing"
	"trip-provider/internal/server"
	"trip-provider/internal/usecase"
)

const devQuoteSecret = "trip-provider-dev-secret"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := env.Load(".env", ".env.local"); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	d := config.Default()

	fs := pflag.NewFlagSet("trip-provider", pflag.ContinueOnError)
	configFile := fs.String("config", "", "YAML or JSON config file")
	fs.String("env", d.Env, "environment (dev|prod)")
	fs.Int("port", d.Port, "HTTP port")
	fs.String("log-level", d.LogLevel, "log level")
	fs.Bool("log-json", d.LogJSON, "JSON logs")
	fs.String("quote-secret", d.QuoteSecret, "HMAC secret for quote tokens")
	fs.Duration("quote-ttl", d.QuoteTTL, "quote token lifetime")
	fs.String("store", d.Store, "order store (memory|postgres|sqlite|mongo)")
	fs.String("postgres-dsn", d.PostgresDSN, "Postgres DSN")
	fs.String("sqlite-path", d.SQLitePath, "SQLite database file")
	fs.String("mongo-uri", d.MongoURI, "MongoDB URI")
	fs.String("redis-addr", d.RedisAddr, "Redis address for the replay cache (empty disables)")
	fs.StringSlice("kafka-brokers", d.KafkaBrokers, "Kafka brokers for order events (empty disables)")
	fs.Int("rate-limit", d.RateLimitPerMin, "requests per minute per client IP (0 disables)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(fs, *configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	secret := cfg.QuoteSecret
	if secret == "" {
		log.Warn("no quote secret configured, using the insecure dev secret")
		secret = devQuoteSecret
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	publisher := openPublisher(cfg, log)
	defer func() { _ = publisher.Close() }()

	tokens, err := usecase.NewTokenService(secret, cfg.QuoteTTL, cfg.QuoteIssuer)
	if err != nil {
		return err
	}
	engine := pricing.NewEngine()
	booking := &usecase.BookingService{
		Engine:      engine,
		Tokens:      tokens,
		Itineraries: &usecase.ItineraryService{Engine: engine, Tokens: tokens},
		Orders:      &usecase.OrderService{Repo: store, Log: log},
		Payments:    payment.NewMockAuthorizer(cfg.PaymentPrefix, log),
		Events:      publisher,
		Log:         log,
	}

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: server.New(cfg, booking, store, log).Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("trip provider listening", zap.Int("port", cfg.Port), zap.String("store", cfg.Store), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type publisher interface {
	usecase.EventPublisher
	Close() error
}

func openPublisher(cfg config.Config, log *zap.Logger) publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Noop{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
}

// openStore builds the configured order store, optionally fronted by the
// Redis replay cache, behind the circuit breaker.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.OrderStore, error) {
	var (
		store repo.OrderStore
		err   error
	)
	switch cfg.Store {
	case "memory":
		store = repo.NewMemoryOrderRepo()
	case "postgres":
		store, err = repo.OpenPostgres(ctx, cfg.PostgresDSN)
	case "sqlite":
		ensureDir(filepath.Dir(cfg.SQLitePath))
		store, err = repo.OpenSQLite(ctx, cfg.SQLitePath)
	case "mongo":
		store, err = repo.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, replay cache will fall through", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		store = repo.NewCachedOrderRepo(store, client, cfg.CacheTTL, log)
	}

	return repo.NewBreakerOrderRepo(store, repo.BreakerSettings{
		ConsecutiveFails: cfg.BreakerFails,
		OpenTimeout:      cfg.BreakerTimeout,
	}, log), nil
}

func ensureDir(p string) {
	if p == "" {
		return
	}
	if _, err := os.Stat(p); os.IsNotExist(err) {
		_ = os.MkdirAll(p, 0o755)
	}
}
