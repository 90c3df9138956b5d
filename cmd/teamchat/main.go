// Command teamchat is the terminal chat client. It polls the chat API for
// messages and typing indicators while a session is active.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsdesk/teamchat/internal/client"
	"github.com/opsdesk/teamchat/internal/config"
	"github.com/opsdesk/teamchat/internal/conversation"
	"github.com/opsdesk/teamchat/internal/logging"
	"github.com/opsdesk/teamchat/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var url, token, logFile string

	cmd := &cobra.Command{
		Use:          "teamchat",
		Short:        "Terminal client for team chat",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.URL = url
			}
			if token != "" {
				cfg.Token = token
			}
			if logFile != "" {
				cfg.LogFile = logFile
			}
			if cfg.Token == "" {
				return errors.New("no token: pass --token or set TEAMCHAT_TOKEN")
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "chat API base URL (overrides TEAMCHAT_URL)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (overrides TEAMCHAT_TOKEN)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log destination (overrides TEAMCHAT_LOG_FILE)")
	return cmd
}

const userAgent = "teamchat-tui"

func run(ctx context.Context, cfg config.Client) error {
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if err := logging.Setup(cfg.Log, f); err != nil {
		return err
	}

	conn, err := conversation.Dial(cfg.URL, cfg.View, client.WithUserAgent(userAgent))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := conn.Gate.Login(ctx, cfg.Token); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer conn.Gate.Logout()

	conn.View.Mount(ctx)
	defer conn.View.Unmount()

	_, err = tea.NewProgram(tui.New(ctx, conn.View), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	m := conn.API.GetMetrics()
	log.Info().Str("component", "teamchat").
		Int("requests", m.Requests).
		Int("errors", m.Errors).
		Dur("max_latency", m.MaxLatency).
		Msg("session ended")
	return nil
}
