// Package loadstats aggregates client-side measurements from many simulated
// chat users and prints a percentile report, optionally alongside server
// metrics scraped from the API's Prometheus endpoint.
package loadstats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector is safe for concurrent use by every simulated user.
type Collector struct {
	mu             sync.Mutex
	loginLatencies []time.Duration
	sendLatencies  []time.Duration
	echoLatencies  []time.Duration
	logins         int
	sent           int
	errors         int
	timeouts       int
	startTime      time.Time
	scraper        *Scraper
}

// NewCollector starts the report clock.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetScraper includes s in the report.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddLogin records a successful login.
func (c *Collector) AddLogin(d time.Duration) {
	c.mu.Lock()
	c.loginLatencies = append(c.loginLatencies, d)
	c.logins++
	c.mu.Unlock()
}

// AddSend records an accepted POST /chat/messages.
func (c *Collector) AddSend(d time.Duration) {
	c.mu.Lock()
	c.sendLatencies = append(c.sendLatencies, d)
	c.sent++
	c.mu.Unlock()
}

// AddEcho records the time from send until the message poller showed the
// message.
func (c *Collector) AddEcho(d time.Duration) {
	c.mu.Lock()
	c.echoLatencies = append(c.echoLatencies, d)
	c.mu.Unlock()
}

// AddError counts a failed request.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// AddTimeout counts a sent message that never appeared in the view.
func (c *Collector) AddTimeout() {
	c.mu.Lock()
	c.timeouts++
	c.mu.Unlock()
}

// Counts returns logins, sent messages, errors and echo timeouts.
func (c *Collector) Counts() (logins, sent, errors, timeouts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins, c.sent, c.errors, c.timeouts
}

// Report writes the summary to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", time.Since(c.startTime).Round(time.Second))
	fmt.Fprintf(w, "Logins:       %d\n", c.logins)
	fmt.Fprintf(w, "Sent:         %d\n", c.sent)
	fmt.Fprintf(w, "Errors:       %d\n", c.errors)
	fmt.Fprintf(w, "Echo timeouts: %d\n", c.timeouts)
	if total := c.sent + c.errors; total > 0 {
		fmt.Fprintf(w, "Error rate:   %.2f%%\n", float64(c.errors)/float64(total)*100)
	}

	for _, s := range []struct {
		title string
		d     []time.Duration
	}{
		{"Login Latency", c.loginLatencies},
		{"Send Latency", c.sendLatencies},
		{"Echo Latency", c.echoLatencies},
	} {
		if len(s.d) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", s.title)
		fmt.Fprintln(w, Summarize(s.d))
	}

	if c.scraper != nil {
		c.scraper.Report(w)
	}
	fmt.Fprintln(w)
}

// Summary holds a latency distribution.
type Summary struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		s.Avg.Round(time.Microsecond),
		s.P50.Round(time.Microsecond),
		s.P95.Round(time.Microsecond),
		s.P99.Round(time.Microsecond),
		s.Max.Round(time.Microsecond),
		s.N,
	)
}

// Summarize computes percentiles of durations. The input is not modified.
func Summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	d := make([]time.Duration, n)
	copy(d, durations)
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })

	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	rank := func(p float64) time.Duration {
		return d[int(math.Ceil(float64(n)*p))-1]
	}
	return Summary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: d[n/2],
		P95: rank(0.95),
		P99: rank(0.99),
		Max: d[n-1],
	}
}
