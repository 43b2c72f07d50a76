package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunnelMetricsObserve(t *testing.T) {
	m := NewFunnelMetrics(nil)
	m.ObserveStep("city")
	m.ObserveOTP("send", "ok")
	m.ObserveSubmission("Success")
	m.ObserveUpstream("intake", "200", time.Now())
	m.SetActiveSessions(3)
}

func TestFunnelMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFunnelMetrics(reg)
	m.ObserveStep("name")
	m.ObserveStep("name")
	m.ObserveSubmission("DuplicatePhone")

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}
	steps := byName["listing_funnel_step_reached_total"]
	require.NotNil(t, steps)
	require.Len(t, steps.GetMetric(), 1)
	assert.Equal(t, 2.0, steps.GetMetric()[0].GetCounter().GetValue())
	assert.NotNil(t, byName["listing_leads_submissions_total"])
}

func TestFunnelMetricsNilSafe(t *testing.T) {
	var m *FunnelMetrics
	m.ObserveStep("otp")
	m.ObserveOTP("verify", "invalid")
	m.ObserveSubmission("NetworkError")
	m.ObserveUpstream("otp", "error", time.Now())
	m.SetActiveSessions(1)
}
