package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/listing-lead-assistant/internal/cities"
	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/internal/otp"
)

func testComponents(now func() time.Time) Components {
	return Components{
		Directory:   cities.NewStaticDirectory([]cities.Entry{{Name: "Mumbai", ID: "2"}}),
		NewVerifier: func() Verifier { return otp.NewManager(&fakeProvider{}, otp.DefaultSettings(), otp.WithClock(now)) },
		Gateway:     leads.NewGateway(&fakeIntake{}, leads.GatewayConfig{}, nil),
	}
}

func TestRegistryCreateGetRemove(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewFunnelMetrics(reg)
	r := NewRegistry(testComponents(time.Now).NewSession, time.Minute, nil, m)

	s := r.Create(&recordingShell{})
	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	r.Remove(s.ID())
	_, err = r.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, r.Len())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegistrySweepExpiresIdleSessions(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	comps := testComponents(clock)
	factory := func(id string, shell Shell) *Session {
		s := comps.NewSession(id, shell)
		s.now = clock
		s.lastActive = clock()
		return s
	}
	r := NewRegistry(factory, 10*time.Minute, nil, nil)
	r.now = clock

	idle := r.Create(&recordingShell{})
	now = now.Add(6 * time.Minute)
	active := r.Create(&recordingShell{})
	now = now.Add(5 * time.Minute)
	active.NoteActivity()

	assert.Equal(t, 1, r.Sweep())
	_, err := r.Get(idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(active.ID())
	assert.NoError(t, err)
}

func TestRegistryRunStopsOnCancel(t *testing.T) {
	r := NewRegistry(testComponents(time.Now).NewSession, 0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, r.Run(ctx, time.Hour))
}

func TestRegistryActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewFunnelMetrics(reg)
	r := NewRegistry(testComponents(time.Now).NewSession, time.Minute, nil, m)
	r.Create(&recordingShell{})
	r.Create(&recordingShell{})

	families, err := reg.Gather()
	require.NoError(t, err)
	var value float64
	for _, mf := range families {
		if mf.GetName() == "listing_funnel_active_sessions" {
			value = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 2.0, value)
}
