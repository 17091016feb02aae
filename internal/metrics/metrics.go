// Package metrics holds the hub's Prometheus collectors.
//
// Naming convention: namespace_subsystem_name
// - namespace: tandem
// - subsystem: ws (socket lifecycle), calls (signaling), presence
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions tracks currently open WebSocket sessions on this process.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tandem",
		Subsystem: "ws",
		Name:      "active_sessions",
		Help:      "Current number of open WebSocket sessions",
	})

	// MessagesReceived counts inbound client frames by message type
	// ("malformed" for frames that failed to decode).
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tandem",
		Subsystem: "ws",
		Name:      "messages_received_total",
		Help:      "Total client messages read from WebSockets",
	}, []string{"type"})

	// MessagesForwarded counts bus messages written out to local sockets.
	MessagesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tandem",
		Subsystem: "ws",
		Name:      "messages_forwarded_total",
		Help:      "Total bus messages forwarded to WebSockets",
	}, []string{"type"})

	// CallsInitiated counts call_request messages that reached the router.
	CallsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tandem",
		Subsystem: "calls",
		Name:      "initiated_total",
		Help:      "Total call requests routed",
	})

	// CallsAccepted counts accepts that completed token fan-out.
	CallsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tandem",
		Subsystem: "calls",
		Name:      "accepted_total",
		Help:      "Total calls accepted with tokens delivered to both parties",
	})

	// CallsRejected counts call_reject messages forwarded to callers.
	CallsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tandem",
		Subsystem: "calls",
		Name:      "rejected_total",
		Help:      "Total calls rejected by the callee",
	})

	// CallSetupFailures counts accepts abandoned mid-setup (user lookup or
	// token mint failed; both parties got an error frame).
	CallSetupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tandem",
		Subsystem: "calls",
		Name:      "setup_failures_total",
		Help:      "Total call setups abandoned after accept",
	})

	// PresenceChecks counts presence lookups by outcome (online, offline, unknown).
	PresenceChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tandem",
		Subsystem: "presence",
		Name:      "checks_total",
		Help:      "Total presence lookups by result",
	}, []string{"result"})
)

// Handler exposes the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
