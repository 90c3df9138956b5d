package loadstats

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type snapshot struct {
	at         time.Time
	requests   float64
	messages   float64 // teamchat_messages_total{type="sent"}
	rejected   float64
	typing     float64
	latencySum float64
	latencyCnt float64
}

// Scraper polls the API's /metrics endpoint during a run.
type Scraper struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	snapshots []snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScraper creates a scraper for metricsURL.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		url:      metricsURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		done:     make(chan struct{}),
	}
}

// Start takes a snapshot now and then every interval until Stop or ctx ends.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrapeOnce(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.scrapeOnce(context.Background())
				return
			case <-ticker.C:
				s.scrapeOnce(ctx)
			}
		}
	}()
}

// Stop ends scraping after a final snapshot.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Snapshots returns how many scrapes succeeded.
func (s *Scraper) Snapshots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func (s *Scraper) scrapeOnce(ctx context.Context) {
	snap, err := s.fetch(ctx)
	if err != nil {
		// The API may not be up yet.
		return
	}
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

func (s *Scraper) fetch(ctx context.Context) (snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return snapshot{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snapshot{}, fmt.Errorf("loadstats: scrape: status %d", resp.StatusCode)
	}
	return parseSnapshot(resp.Body)
}

func parseSnapshot(r io.Reader) (snapshot, error) {
	snap := snapshot{at: time.Now()}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		name, labels, value, ok := parseMetricLine(line)
		if !ok {
			continue
		}
		switch name {
		case "teamchat_http_requests_total":
			snap.requests += value
		case "teamchat_messages_total":
			switch {
			case strings.Contains(labels, `type="sent"`):
				snap.messages += value
			case strings.Contains(labels, `type="rejected"`):
				snap.rejected += value
			}
		case "teamchat_typing_updates_total":
			snap.typing += value
		case "teamchat_http_request_duration_seconds_sum":
			snap.latencySum += value
		case "teamchat_http_request_duration_seconds_count":
			snap.latencyCnt += value
		}
	}
	return snap, scanner.Err()
}

// parseMetricLine splits a text exposition sample into its name, raw label
// set and value.
func parseMetricLine(line string) (name, labels string, value float64, ok bool) {
	rest := line
	if i := strings.IndexByte(line, '{'); i != -1 {
		j := strings.IndexByte(line[i:], '}')
		if j == -1 {
			return "", "", 0, false
		}
		name = line[:i]
		labels = line[i+1 : i+j]
		rest = name + line[i+j+1:]
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "", "", 0, false
	}
	if name == "" {
		name = fields[0]
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", "", 0, false
	}
	return name, labels, v, true
}

// Report writes first/last deltas of the scraped counters to w.
func (s *Scraper) Report(w io.Writer) {
	s.mu.Lock()
	snaps := append([]snapshot(nil), s.snapshots...)
	s.mu.Unlock()

	if len(snaps) == 0 {
		fmt.Fprintln(w, "\n--- Server Metrics (no data collected) ---")
		return
	}
	first, last := snaps[0], snaps[len(snaps)-1]

	fmt.Fprintln(w, "\n--- Server Metrics (Prometheus) ---")
	fmt.Fprintf(w, "  Scrape count:  %d snapshots over %s\n", len(snaps), last.at.Sub(first.at).Round(time.Second))
	fmt.Fprintf(w, "  %-16s %10s %10s %10s\n", "Metric", "Initial", "Final", "Delta")
	for _, row := range []struct {
		label       string
		first, last float64
	}{
		{"HTTP Requests", first.requests, last.requests},
		{"Messages Sent", first.messages, last.messages},
		{"Rejected", first.rejected, last.rejected},
		{"Typing Updates", first.typing, last.typing},
	} {
		fmt.Fprintf(w, "  %-16s %10.0f %10.0f %10.0f\n", row.label, row.first, row.last, row.last-row.first)
	}
	if n := last.latencyCnt - first.latencyCnt; n > 0 {
		fmt.Fprintf(w, "  %-16s avg: %.4fs  (%.0f requests)\n", "Request Latency", (last.latencySum-first.latencySum)/n, n)
	}
}
