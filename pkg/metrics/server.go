package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServerMetrics tracks connection and response counts for the HTTP server.
//
// A nil *ServerMetrics is valid and records nothing, which is what
// NewServerMetrics returns when the registry was never initialized.
type ServerMetrics struct {
	activeConnections prometheus.Gauge
	acceptedTotal     prometheus.Counter
	busyRejectedTotal prometheus.Counter
	timeoutsTotal     prometheus.Counter
	responsesTotal    *prometheus.CounterVec
}

// NewServerMetrics creates the server metric set on the global registry,
// or returns nil when metrics are disabled.
func NewServerMetrics() *ServerMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &ServerMetrics{
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webserver_active_connections",
			Help: "Number of currently open client connections",
		}),
		acceptedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "webserver_accepted_connections_total",
			Help: "Total number of accepted client connections",
		}),
		busyRejectedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "webserver_busy_rejected_total",
			Help: "Connections rejected because the connection cap was reached",
		}),
		timeoutsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "webserver_inactivity_timeouts_total",
			Help: "Connections closed by the inactivity timer",
		}),
		responsesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "webserver_responses_total",
			Help: "Responses composed, labeled by HTTP status code",
		}, []string{"code"}),
	}
}

func (m *ServerMetrics) ConnOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.acceptedTotal.Inc()
}

func (m *ServerMetrics) ConnClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *ServerMetrics) BusyRejected() {
	if m == nil {
		return
	}
	m.busyRejectedTotal.Inc()
}

func (m *ServerMetrics) TimedOut() {
	if m == nil {
		return
	}
	m.timeoutsTotal.Inc()
}

func (m *ServerMetrics) Response(code int) {
	if m == nil {
		return
	}
	m.responsesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}
