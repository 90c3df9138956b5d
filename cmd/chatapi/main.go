// Command chatapi serves the team chat REST API. The other subcommands are
// operator tools run against the same Postgres and Redis.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opsdesk/teamchat/internal/account"
	"github.com/opsdesk/teamchat/internal/api"
	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/config"
	"github.com/opsdesk/teamchat/internal/logging"
	"github.com/opsdesk/teamchat/internal/messaging"
	"github.com/opsdesk/teamchat/internal/mute"
	"github.com/opsdesk/teamchat/internal/presence"
	"github.com/opsdesk/teamchat/internal/ratelimit"
	"github.com/opsdesk/teamchat/internal/session"
	"github.com/opsdesk/teamchat/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.API

	root := &cobra.Command{
		Use:           "chatapi",
		Short:         "Team chat REST API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.LoadAPI(); err != nil {
				return err
			}
			return logging.Setup(cfg.Log, os.Stderr)
		},
	}

	root.AddCommand(
		newServeCmd(&cfg),
		newMigrateCmd(&cfg),
		newIssueTokenCmd(&cfg),
		newUnmuteCmd(&cfg),
		newFlagsCmd(&cfg),
	)
	return root
}

func newServeCmd(cfg *config.API) *cobra.Command {
	var (
		listen string
		noNATS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}
			return serve(ctx, *cfg, !noNATS)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides LISTEN_ADDR)")
	cmd.Flags().BoolVar(&noNATS, "no-nats", false, "do not publish message events")
	return cmd
}

func serve(ctx context.Context, cfg config.API, useNATS bool) error {
	log.Info().Str("component", "chatapi").Str("config", cfg.String()).Msg("starting")

	db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		return err
	}

	rdb, err := storage.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	deps := api.Deps{
		Sessions: session.NewStore(rdb),
		Messages: chat.NewStore(db),
		Typing:   presence.NewStore(rdb),
		Limiter:  ratelimit.NewLimiter(rdb),
		Mutes:    mute.NewStore(rdb),
	}
	if useNATS {
		nc, err := messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			return err
		}
		defer nc.Close()
		deps.Events = nc
	}

	srv := api.NewServer(cfg.Server, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}

func newMigrateCmd(cfg *config.API) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.OpenPostgres(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := storage.Migrate(db); err != nil {
				return err
			}
			version, dirty, err := storage.SchemaVersion(db)
			if err != nil {
				return err
			}
			log.Info().Str("component", "chatapi").Uint("version", version).Bool("dirty", dirty).Msg("schema migrated")
			return nil
		},
	}
}

func newIssueTokenCmd(cfg *config.API) *cobra.Command {
	var email, first, last string

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Create or update an account and print a bearer token for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			rdb, err := storage.OpenRedis(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			token, err := issueToken(ctx, db, rdb, email, first, last)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&first, "first", "", "first name")
	cmd.Flags().StringVar(&last, "last", "", "last name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func issueToken(ctx context.Context, db *sql.DB, rdb *redis.Client, email, first, last string) (string, error) {
	acct, err := account.NewStore(db).Upsert(ctx, email, first, last)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	err = session.NewStore(rdb).Create(ctx, token, session.Session{
		ID:          acct.ID,
		DisplayName: acct.DisplayName(),
		Email:       acct.Email,
	})
	if err != nil {
		return "", err
	}
	log.Info().Str("component", "chatapi").Str("user_id", acct.ID).Msg("token issued")
	return token, nil
}
