// Command autosubmit runs one trade-in auto-submit sweep and exits. It is
// meant for cron or a scheduler when the HTTP endpoint is not exposed.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/retail-assistant/internal/config"
	"github.com/tbourn/retail-assistant/internal/notify"
	"github.com/tbourn/retail-assistant/internal/repo"
	"github.com/tbourn/retail-assistant/internal/services"
	"github.com/tbourn/retail-assistant/internal/sysutil"
)

const runTimeout = 5 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	db, err := repo.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}

	svc := &services.TradeInService{
		DB:        db,
		Notifier:  notify.New(cfg.SMTP, logger.With().Str("component", "notify").Logger()),
		Delay:     cfg.TradeIn.AutoSubmitDelay,
		BatchSize: cfg.TradeIn.BatchSize,
	}

	sum, err := svc.AutoSubmit(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("auto-submit sweep failed")
	}
	logger.Info().
		Int("checked", sum.Checked).
		Int("submitted", sum.Submitted).
		Int("failed", sum.Failed).
		Float64("delay_minutes", sum.DelayMinutes).
		Msg("auto-submit sweep finished")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		log.Fatal().Err(err).Msg("write summary")
	}
}
