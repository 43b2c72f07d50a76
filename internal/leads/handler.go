package leads

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const (
	createAttempts   = 3
	createRetryDelay = 2 * time.Second
)

// Handler handles HTTP requests for leads
type Handler struct {
	repo       Repository
	logger     *logging.Logger
	retryDelay time.Duration
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	return &Handler{
		repo:       repo,
		logger:     logging.OrDefault(logger),
		retryDelay: createRetryDelay,
	}
}

// CreateListing handles POST /submit requests. Storage failures are retried
// before giving up.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Source = "widget"

	var (
		lead *Lead
		err  error
	)
retry:
	for attempt := 1; ; attempt++ {
		lead, err = h.repo.Create(r.Context(), &req)
		if err == nil || attempt == createAttempts {
			break
		}
		h.logger.Warn("lead insert attempt failed", "attempt", attempt, "error", err)
		select {
		case <-r.Context().Done():
			err = r.Context().Err()
			break retry
		case <-time.After(h.retryDelay):
		}
	}
	if err != nil {
		h.logger.Error("failed to create lead", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Error submitting data: " + err.Error()})
		return
	}

	h.logger.Info("lead created", "id", lead.ID, "city", lead.CityName)
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "success",
		"message": "Data submitted successfully",
		"lead":    lead,
	})
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /admin/leads requests
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter := ListLeadsFilter{
		Limit:       50,
		CityID:      r.URL.Query().Get("city_id"),
		ListingType: r.URL.Query().Get("listing_type"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	leads, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// GetLead handles GET /admin/leads/{leadID} requests
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")
	lead, err := h.repo.GetByID(r.Context(), id)
	if errors.Is(err, ErrLeadNotFound) {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get lead", "error", err, "lead_id", id)
		http.Error(w, "failed to get lead", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
