package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// PingFunc reports whether a backing store is reachable.
type PingFunc func(ctx context.Context) error

// HealthHandler reports process health plus the optional stores behind it.
type HealthHandler struct {
	redis    PingFunc
	database PingFunc
}

// NewHealthHandler creates a health handler. Nil checks are reported as
// "disabled".
func NewHealthHandler(redis, database PingFunc) *HealthHandler {
	return &HealthHandler{redis: redis, database: database}
}

type healthResponse struct {
	Status   string `json:"status"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
}

// ServeHTTP handles GET /health. A failing store degrades the status but
// the endpoint still answers 200 since sessions run without either store.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Redis:    pingStatus(ctx, h.redis),
		Database: pingStatus(ctx, h.database),
	}
	if resp.Redis == "error" || resp.Database == "error" {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func pingStatus(ctx context.Context, ping PingFunc) string {
	if ping == nil {
		return "disabled"
	}
	if err := ping(ctx); err != nil {
		return "error"
	}
	return "ok"
}
