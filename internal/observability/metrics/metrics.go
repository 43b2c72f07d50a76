package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FunnelMetrics exposes counters/histograms for the listing conversation funnel.
type FunnelMetrics struct {
	stepReached     *prometheus.CounterVec
	otpEvents       *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
}

func NewFunnelMetrics(reg prometheus.Registerer) *FunnelMetrics {
	m := &FunnelMetrics{
		stepReached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listing",
			Subsystem: "funnel",
			Name:      "step_reached_total",
			Help:      "Conversations that reached a step",
		}, []string{"step"}),
		otpEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listing",
			Subsystem: "otp",
			Name:      "events_total",
			Help:      "OTP send/verify/resend outcomes",
		}, []string{"action", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listing",
			Subsystem: "leads",
			Name:      "submissions_total",
			Help:      "Lead submissions by outcome",
		}, []string{"outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "listing",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the city, OTP and intake services",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "listing",
			Subsystem: "funnel",
			Name:      "active_sessions",
			Help:      "Conversations currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stepReached, m.otpEvents, m.submissions, m.upstreamLatency, m.activeSessions)
	return m
}

func (m *FunnelMetrics) ObserveStep(step string) {
	if m == nil {
		return
	}
	m.stepReached.WithLabelValues(step).Inc()
}

func (m *FunnelMetrics) ObserveOTP(action, result string) {
	if m == nil {
		return
	}
	m.otpEvents.WithLabelValues(action, result).Inc()
}

func (m *FunnelMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of one outbound call since start.
func (m *FunnelMetrics) ObserveUpstream(service, status string, start time.Time) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(service, status).Observe(time.Since(start).Seconds())
}

func (m *FunnelMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
