package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsdesk/teamchat/internal/config"
	"github.com/opsdesk/teamchat/internal/flag"
	"github.com/opsdesk/teamchat/internal/mute"
	"github.com/opsdesk/teamchat/internal/storage"
)

type flagLister interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]flag.Flag, error)
}

type muteReader interface {
	IsMuted(ctx context.Context, userID string) (bool, int, string, error)
	OffenceCount(ctx context.Context, userID string) (int, error)
}

func newUnmuteCmd(cfg *config.API) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "unmute",
		Short: "Lift a user's mute immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rdb, err := storage.OpenRedis(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			if err := mute.NewStore(rdb).Unmute(ctx, userID); err != nil {
				return fmt.Errorf("unmute: %w", err)
			}
			log.Info().Str("component", "chatapi").Str("user_id", userID).Msg("mute lifted")
			fmt.Fprintf(cmd.OutOrStdout(), "unmuted %s\n", userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newFlagsCmd(cfg *config.API) *cobra.Command {
	var (
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show a user's moderation state and newest flags",
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

			return writeModerationReport(ctx, cmd.OutOrStdout(), flag.NewStore(db), mute.NewStore(rdb), userID, limit)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of flags to list")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writeModerationReport(ctx context.Context, w io.Writer, flags flagLister, mutes muteReader, userID string, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("flags: limit must be positive")
	}

	muted, remaining, reason, err := mutes.IsMuted(ctx, userID)
	if err != nil {
		return fmt.Errorf("flags: mute state: %w", err)
	}
	offences, err := mutes.OffenceCount(ctx, userID)
	if err != nil {
		return fmt.Errorf("flags: offences: %w", err)
	}
	list, err := flags.ListForUser(ctx, userID, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "user:     %s\n", userID)
	if muted {
		fmt.Fprintf(w, "muted:    yes (%s, %s left)\n", reason, time.Duration(remaining)*time.Second)
	} else {
		fmt.Fprintln(w, "muted:    no")
	}
	fmt.Fprintf(w, "offences: %d in the last %s\n", offences, mute.OffencesTTL)

	if len(list) == 0 {
		fmt.Fprintln(w, "no flags")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tMESSAGE\tREASON\tTERM")
	for _, f := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.CreatedAt.UTC().Format(time.RFC3339), f.MessageID, f.Reason, f.Term)
	}
	return tw.Flush()
}
