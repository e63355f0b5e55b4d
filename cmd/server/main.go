// Command server runs the retail assistant HTTP API.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/retail-assistant/internal/catalog"
	"github.com/tbourn/retail-assistant/internal/config"
	httpapi "github.com/tbourn/retail-assistant/internal/http"
	"github.com/tbourn/retail-assistant/internal/llm"
	"github.com/tbourn/retail-assistant/internal/memory"
	"github.com/tbourn/retail-assistant/internal/notify"
	"github.com/tbourn/retail-assistant/internal/observability"
	"github.com/tbourn/retail-assistant/internal/pricing"
	"github.com/tbourn/retail-assistant/internal/ratelimit"
	"github.com/tbourn/retail-assistant/internal/repo"
	"github.com/tbourn/retail-assistant/internal/services"
	"github.com/tbourn/retail-assistant/internal/sessionstore"
	"github.com/tbourn/retail-assistant/internal/sysutil"
	"github.com/tbourn/retail-assistant/internal/tools"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 15 * time.Second
	limiterSweep    = time.Minute
	clientTimeout   = 10 * time.Second
	maxMessageRunes = 4000
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	logger.Info().
		Str("env", cfg.Env).
		Str("version", appVersion).
		Str("port", cfg.Port).
		Str("db_driver", cfg.DBDriver).
		Str("model", cfg.Model.Name).
		Str("catalog", cfg.Catalog.Source).
		Bool("auth_required", cfg.Auth.Required).
		Bool("redis", cfg.RedisURL != "").
		Bool("memory", cfg.MemoryURL != "").
		Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, cfg.Env, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}

	// Catalog, matcher and prices.
	loader, err := catalog.NewLoader(cfg.Catalog.Source, cfg.Catalog.FetchTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog source invalid")
	}
	store := catalog.NewStore(loader,
		catalog.WithTTL(cfg.Catalog.TTL),
		catalog.WithRetryBackoff(cfg.Catalog.RetryBackoff),
		catalog.WithLogger(logger.With().Str("component", "catalog").Logger()),
	)
	if err := store.Reload(ctx); err != nil {
		// Requests still work on an empty catalog; the next lookup retries.
		logger.Warn().Err(err).Msg("initial catalog load failed")
	}
	matcher := catalog.NewMatcher(store)
	prices := pricing.NewResolver(store)

	model := llm.NewClient(llm.Config{
		BaseURL:    cfg.Model.BaseURL,
		APIKey:     cfg.Model.APIKey,
		Model:      cfg.Model.Name,
		Timeout:    cfg.Model.Timeout,
		RPS:        cfg.Model.RPS,
		MaxRetries: cfg.Model.MaxRetries,
	})
	notifier := notify.New(cfg.SMTP, logger.With().Str("component", "notify").Logger())

	tradeIn := &services.TradeInService{
		DB:        db,
		Notifier:  notifier,
		Delay:     cfg.TradeIn.AutoSubmitDelay,
		BatchSize: cfg.TradeIn.BatchSize,
	}

	deps := tools.Deps{
		Catalog: matcher,
		Prices:  prices,
		Leads:   tradeIn,
		Staff:   notifier,
		Vision:  model,
	}
	if cfg.WebSearchURL != "" {
		deps.Web = tools.NewHTTPWebSearcher(cfg.WebSearchURL, clientTimeout)
	}
	if cfg.OrderWebhookURL != "" {
		deps.Orders = tools.NewHTTPOrderDesk(cfg.OrderWebhookURL, clientTimeout)
	}
	registry, err := tools.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("tool registry invalid")
	}

	agent := &services.AgentService{
		Model:  model,
		Tools:  registry,
		DB:     db,
		Memory: memory.Nop{},
		Policy: services.HistoryPolicy{
			MaxTurns: cfg.History.MaxTurns,
			MaxRunes: cfg.History.MaxRunes,
		},
		MaxMessageRunes: maxMessageRunes,
	}
	if cfg.MemoryURL != "" {
		agent.Memory = memory.NewHTTPStore(cfg.MemoryURL, clientTimeout)
	}
	if cfg.RedisURL != "" {
		rdb, err := sessionstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer rdb.Close()
		agent.History = sessionstore.New(rdb, sessionstore.WithMaxTurns(cfg.History.MaxTurns))
	}

	limiter := ratelimit.New()
	go limiter.Run(ctx, limiterSweep)

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		Agent:   agent,
		Sweeper: tradeIn,
		Limiter: limiter,
		Ready:   pingDB(db),
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}

	logger.Info().Msg("server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server forced shutdown")
	}
	logger.Info().Msg("server stopped")
}

func pingDB(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
