// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Name:      "sessions",
		Help:      "Live websocket sessions.",
	})

	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "inbound_events_total",
		Help:      "Inbound websocket events by name and outcome.",
	}, []string{"event", "outcome"})

	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "commands_total",
		Help:      "Slash commands by verb and outcome.",
	}, []string{"verb", "outcome"})

	Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "messages_total",
		Help:      "Stored and deleted chat messages by channel kind.",
	}, []string{"kind", "op"})

	Calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "call_transitions_total",
		Help:      "Call state transitions by target state and cause.",
	}, []string{"state", "cause"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "rate_limited_events_total",
		Help:      "Inbound events dropped by the per-session rate limit.",
	})

	Registry = prometheus.NewRegistry()
)

func init() {
	Registry.MustRegister(
		Sessions, Events, Commands, Messages, Calls, RateLimited,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// Handler serves the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Outcome converts an error into a low-cardinality label value: "ok" or
// the error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}
