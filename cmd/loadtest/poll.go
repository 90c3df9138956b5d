package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/client"
	"github.com/opsdesk/teamchat/internal/conversation"
	"github.com/opsdesk/teamchat/internal/loadstats"
	"github.com/opsdesk/teamchat/internal/logging"
)

type pollOptions struct {
	url            string
	tokensFile     string
	tokens         []string
	users          int
	duration       time.Duration
	rampUp         time.Duration
	sendInterval   time.Duration
	echoTimeout    time.Duration
	metricsURL     string
	scrapeInterval time.Duration
}

func newPollCmd() *cobra.Command {
	o := pollOptions{}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Mount N conversation views, send on an interval and measure echo latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Setup(logging.Config{Level: "warn", Format: "console"}, os.Stderr); err != nil {
				return err
			}
			if o.tokensFile != "" {
				tokens, err := readTokens(o.tokensFile)
				if err != nil {
					return err
				}
				o.tokens = append(o.tokens, tokens...)
			}
			if len(o.tokens) == 0 {
				return errors.New("no tokens: pass --token or --tokens-file")
			}
			if o.users <= 0 {
				o.users = len(o.tokens)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			runPoll(ctx, o)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.url, "url", "http://localhost:8080", "chat API base URL")
	f.StringVar(&o.tokensFile, "tokens-file", "", "file with one bearer token per line")
	f.StringSliceVar(&o.tokens, "token", nil, "bearer token (repeatable)")
	f.IntVar(&o.users, "users", 0, "simulated users; tokens are reused round-robin (default: one per token)")
	f.DurationVar(&o.duration, "duration", time.Minute, "how long each user keeps sending")
	f.DurationVar(&o.rampUp, "ramp", 5*time.Second, "spread user start over this duration")
	f.DurationVar(&o.sendInterval, "send-interval", 3*time.Second, "interval between messages per user")
	f.DurationVar(&o.echoTimeout, "echo-timeout", 10*time.Second, "how long to wait for a sent message to be polled back")
	f.StringVar(&o.metricsURL, "metrics-url", "http://localhost:8080/metrics", "Prometheus endpoint; empty disables scraping")
	f.DurationVar(&o.scrapeInterval, "scrape-interval", 2*time.Second, "interval between metrics scrapes")
	return cmd
}

func readTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	defer f.Close()

	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" && !strings.HasPrefix(t, "#") {
			tokens = append(tokens, t)
		}
	}
	return tokens, sc.Err()
}

func runPoll(ctx context.Context, o pollOptions) {
	fmt.Printf("Poll test: %d users against %s (duration=%s, send-interval=%s, ramp=%s)\n",
		o.users, o.url, o.duration, o.sendInterval, o.rampUp)

	collector := loadstats.NewCollector()
	if o.metricsURL != "" {
		scraper := loadstats.NewScraper(o.metricsURL, o.scrapeInterval)
		collector.SetScraper(scraper)
		scraper.Start(ctx)
		defer scraper.Stop()
	}

	step := o.rampUp / time.Duration(o.users)
	var wg sync.WaitGroup
	for i := 0; i < o.users; i++ {
		select {
		case <-ctx.Done():
		case <-time.After(step):
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			simulateUser(ctx, id, o.tokens[id%len(o.tokens)], o, collector)
		}(i)
	}
	wg.Wait()
	collector.Report(os.Stdout)
}

func simulateUser(ctx context.Context, id int, token string, o pollOptions, c *loadstats.Collector) {
	logger := log.With().Str("component", "loadtest").Int("user", id).Logger()

	conn, err := conversation.Dial(o.url, conversation.DefaultConfig(), client.WithUserAgent("teamchat-loadtest"))
	if err != nil {
		logger.Error().Err(err).Msg("dial failed")
		c.AddError()
		return
	}

	start := time.Now()
	if _, err := conn.Gate.Login(ctx, token); err != nil {
		logger.Warn().Err(err).Msg("login failed")
		c.AddError()
		return
	}
	c.AddLogin(time.Since(start))
	defer conn.Gate.Logout()

	conn.View.Mount(ctx)
	defer conn.View.Unmount()

	deadline := time.After(o.duration)
	ticker := time.NewTicker(o.sendInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		body := fmt.Sprintf("loadtest %d/%d %s", id, n, strings.Repeat("x", 16))
		for _, r := range body {
			conn.View.SetDraft(conn.View.Draft() + string(r))
		}

		before, _ := conn.View.PollerStats()
		sentAt := time.Now()
		msg, err := conn.View.Send(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("send failed")
			c.AddError()
			if !conn.Gate.Active() {
				return
			}
			conn.View.SetDraft("")
		} else {
			c.AddSend(time.Since(sentAt))
			waitForEcho(ctx, conn.View, msg.ID, before.Applied, sentAt, o.echoTimeout, c)
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}

// waitForEcho blocks until a message poll returns id. A successful send
// already inserts the message locally, so this waits for the server copy by
// watching the poller's applied count.
func waitForEcho(ctx context.Context, v *conversation.View, id string, applied uint64, sentAt time.Time, timeout time.Duration, c *loadstats.Collector) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		stats, _ := v.PollerStats()
		if stats.Applied > applied && chat.ContainsMessage(v.Messages(), id) {
			c.AddEcho(time.Since(sentAt))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
	c.AddTimeout()
}
