// Package metrics provides Prometheus instrumentation for the chat API and
// the moderator: HTTP traffic, message throughput, typing updates and
// moderation outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts API requests by route pattern and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchat_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "status"})

	// HTTPRequestDuration records request latency in seconds by route.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teamchat_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"route"})

	// MessagesTotal counts chat messages by outcome.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"}) // type = "sent", "rejected", "flagged"

	// TypingUpdatesTotal counts typing state updates by value.
	TypingUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchat_typing_updates_total",
		Help: "Total number of typing indicator updates",
	}, []string{"is_typing"})

	// MutesTotal counts mutes issued by the moderator.
	MutesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_mutes_total",
		Help: "Total number of mutes issued",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MessagesTotal,
		TypingUpdatesTotal,
		MutesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveTyping records a typing update.
func ObserveTyping(isTyping bool) {
	TypingUpdatesTotal.WithLabelValues(strconv.FormatBool(isTyping)).Inc()
}
