package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/listing-lead-assistant/internal/config"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

func TestSetupMetricsExposesFunnel(t *testing.T) {
	handler, funnel := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, funnel)

	funnel.ObserveStep("city")
	funnel.SetActiveSessions(3)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "listing_funnel_active_sessions 3")
	assert.Contains(t, body, "go_goroutines")
}

func TestRunServesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cities := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer cities.Close()

	cfg := appconfig.Load()
	cfg.Port = strconv.Itoa(port)
	cfg.RedisAddr = ""
	cfg.DatabaseURL = ""
	cfg.GeminiAPIKey = ""
	cfg.LeadEventsQueueURL = ""
	cfg.CityAPIURL = cities.URL

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logging.New("error")) }()

	base := "http://127.0.0.1:" + cfg.Port
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
