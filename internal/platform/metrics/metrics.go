package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the stream client and the relay
// simulator. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter
	routeRequests *prometheus.CounterVec

	transitionsTotal  *prometheus.CounterVec
	negotiationsTotal *prometheus.CounterVec
	heartbeatsTotal   *prometheus.CounterVec
	framesTotal       *prometheus.CounterVec
	releasesTotal     prometheus.Counter
	activeSessions    prometheus.Gauge

	segmentsRegistered prometheus.Counter
	sessionsExpired    prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camstream_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camstream_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		routeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camstream_http_route_requests_total",
			Help: "HTTP requests by method, matched route pattern and status code",
		}, []string{"method", "route", "code"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camstream_state_transitions_total",
			Help: "Playback state transitions by source and destination state",
		}, []string{"from", "to"}),
		negotiationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camstream_negotiations_total",
			Help: "Stream negotiations by outcome",
		}, []string{"result"}),
		heartbeatsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camstream_heartbeats_total",
			Help: "Heartbeats sent to the relay by outcome",
		}, []string{"result"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camstream_frames_total",
			Help: "Frames or access units delivered to the render target by transport",
		}, []string{"transport"}),
		releasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camstream_releases_total",
			Help: "Stream sessions released on the relay",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camstream_active_sessions",
			Help: "Sessions currently holding a relay session id",
		}),
		segmentsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camstream_relay_segments_registered_total",
			Help: "Segments registered on the relay simulator",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camstream_relay_sessions_expired_total",
			Help: "Relay sessions dropped for missing heartbeats",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.routeRequests,
		m.transitionsTotal,
		m.negotiationsTotal,
		m.heartbeatsTotal,
		m.framesTotal,
		m.releasesTotal,
		m.activeSessions,
		m.segmentsRegistered,
		m.sessionsExpired,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveRoute counts one request against its route pattern.
func (m *Metrics) ObserveRoute(method, route string, status int) {
	if m == nil {
		return
	}
	m.routeRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveTransition counts one state transition.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveNegotiation counts a negotiation by result ("ok", "auth", "network", "backend").
func (m *Metrics) ObserveNegotiation(result string) {
	if m == nil {
		return
	}
	m.negotiationsTotal.WithLabelValues(result).Inc()
}

// ObserveHeartbeat counts a heartbeat by result ("ok", "error", "rejected").
func (m *Metrics) ObserveHeartbeat(result string) {
	if m == nil {
		return
	}
	m.heartbeatsTotal.WithLabelValues(result).Inc()
}

// IncFrames counts one delivered frame or access unit.
func (m *Metrics) IncFrames(transport string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(transport).Inc()
}

// IncReleases counts one session release.
func (m *Metrics) IncReleases() {
	if m == nil {
		return
	}
	m.releasesTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// IncSegmentsRegistered increments the segments registered counter.
func (m *Metrics) IncSegmentsRegistered() {
	if m == nil {
		return
	}
	m.segmentsRegistered.Inc()
}

// AddSessionsExpired counts relay sessions removed by the idle sweeper.
func (m *Metrics) AddSessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsExpired.Add(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
