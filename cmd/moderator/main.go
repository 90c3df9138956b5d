// Command moderator reviews posted chat messages. It consumes
// chat.message.created events, flags blocked content in Postgres, mutes
// repeat offenders in Redis and publishes each verdict on moderation.result.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/config"
	"github.com/opsdesk/teamchat/internal/flag"
	"github.com/opsdesk/teamchat/internal/logging"
	"github.com/opsdesk/teamchat/internal/messaging"
	"github.com/opsdesk/teamchat/internal/metrics"
	"github.com/opsdesk/teamchat/internal/moderation"
	"github.com/opsdesk/teamchat/internal/mute"
	"github.com/opsdesk/teamchat/internal/storage"
)

func main() {
	cfg, err := config.LoadModerator()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("invalid log configuration")
	}
	logger := log.With().Str("component", "moderator").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := storage.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis unavailable")
	}
	defer rdb.Close()

	db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres unavailable")
	}
	defer db.Close()

	nc, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats unavailable")
	}
	defer nc.Close()

	svc := moderation.NewService(moderation.NewFilter(moderation.WithTrustedDomains(cfg.TrustedDomains...)), flag.NewStore(db), mute.NewStore(rdb), nc)
	if err := nc.SubscribeMessageCreated(cfg.Queue, svc.HandleEvent); err != nil {
		logger.Fatal().Err(err).Msg("subscribe failed")
	}

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, metrics.Handler()); err != nil {
				logger.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	logger.Info().
		Str("redis", cfg.Redis.Addr).
		Str("nats", cfg.NATS.URL).
		Str("db", config.RedactURL(cfg.DatabaseURL)).
		Str("queue", cfg.Queue).
		Strs("trusted_domains", cfg.TrustedDomains).
		Msg("running")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
}
