package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Collectors for the OAuth authorization core. They are created at package
// initialization so services and tests can record into them without a
// registry; Register attaches them to a Prometheus registry at startup.
var (
	FlowStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpauth_oauth_flows_started_total",
		Help: "Total number of OAuth connect flows started.",
	}, []string{"provider"})

	FlowCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpauth_oauth_flows_completed_total",
		Help: "Total number of OAuth connect flows completed.",
	}, []string{"provider", "status"})

	ActiveSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcpauth_oauth_active_sessions",
		Help: "Current number of in-flight authorization sessions.",
	})

	SessionsExpiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpauth_oauth_sessions_expired_total",
		Help: "Total number of authorization sessions reclaimed after expiry.",
	}, []string{"provider"})

	TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpauth_oauth_token_refresh_total",
		Help: "Total number of token refresh attempts by outcome.",
	}, []string{"provider", "status"})

	TokenRefreshDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcpauth_oauth_token_refresh_duration_seconds",
		Help:    "Duration of token refresh attempts.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	SecurityEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpauth_oauth_security_events_total",
		Help: "Total number of detected security events.",
	}, []string{"violation_type"})

	SSRFBlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpauth_oauth_ssrf_blocked_total",
		Help: "Total number of provider endpoint URLs rejected by the SSRF guard.",
	}, []string{"reason"})

	LocksReclaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcpauth_oauth_refresh_locks_reclaimed_total",
		Help: "Total number of stale refresh locks force-cleared by the cleanup sweep.",
	})

	AuditEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpauth_oauth_audit_events_total",
		Help: "Total number of auditable authorization events by type and severity.",
	}, []string{"event_type", "severity"})
)

// Violation type label values.
const (
	ViolationHashMismatch = "hash_mismatch"
	ViolationStateReuse   = "state_reuse"
	ViolationUserMismatch = "user_mismatch"
)

// Refresh status label values.
const (
	StatusSuccess       = "success"
	StatusFailure       = "failure"
	StatusReuseDetected = "reuse_detected"
)

// Audit severity label values.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent records a violation counter increment together with the
// corresponding audit event in one call, so the two series cannot drift.
func SecurityEvent(violationType, severity string) {
	SecurityEventsTotal.WithLabelValues(violationType).Inc()
	AuditEventsTotal.WithLabelValues(violationType, severity).Inc()
}

// Register attaches all collectors to the given registry. It should be
// called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics")
		return
	}
	collectors := []prometheus.Collector{
		FlowStartedTotal,
		FlowCompletedTotal,
		ActiveSessionsGauge,
		SessionsExpiredTotal,
		TokenRefreshTotal,
		TokenRefreshDuration,
		SecurityEventsTotal,
		SSRFBlockedTotal,
		LocksReclaimedTotal,
		AuditEventsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register Prometheus collector")
		}
	}
	log.Info().Msg("OAuth metrics registered")
}
