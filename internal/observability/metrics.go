package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// dash-api metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dash_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dash_active_requests",
		Help: "Current in-flight requests",
	})

	OpenStreams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dash_open_streams",
		Help: "Open websocket streams served by the gateway",
	}, []string{"route"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dash_active_start_sessions",
		Help: "Mounted workspace start sessions",
	})

	// start session metrics
	StartRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_start_requests_total",
		Help: "startWorkspace calls issued, by result",
	}, []string{"result"})

	InstanceUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_instance_updates_total",
		Help: "Instance updates seen by start sessions",
	}, []string{"result"})

	PhaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_phase_transitions_total",
		Help: "Displayed phase transition count",
	}, []string{"from", "to"})

	RedirectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_redirects_total",
		Help: "Redirects into a running workspace",
	}, []string{"target"})

	BootstrapTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_auth_bootstrap_total",
		Help: "Workspace auth cookie bootstrap outcomes",
	}, []string{"result"})

	// handshake metrics
	HandshakeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_auth_handshake_total",
		Help: "Authorization window handshake outcomes",
	}, []string{"result"})

	HandshakeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dash_auth_handshake_duration_seconds",
		Help:    "Time from window open to handshake outcome",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 100},
	})

	// remote channel metrics
	RPCReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_rpc_reconnects_total",
		Help: "Reconnect attempts to the remote service",
	})

	RPCCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dash_rpc_call_duration_seconds",
		Help:    "Remote call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	LogChunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_log_chunks_total",
		Help: "Log chunks delivered to subscribers",
	}, []string{"source"})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests, OpenStreams, ActiveSessions,
		StartRequestsTotal, InstanceUpdatesTotal, PhaseTransitions, RedirectsTotal, BootstrapTotal,
		HandshakeTotal, HandshakeDuration,
		RPCReconnectsTotal, RPCCallDuration, LogChunksTotal,
	)
}
