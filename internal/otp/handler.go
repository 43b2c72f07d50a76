package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/listing-lead-assistant/internal/validation"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// Forwarder relays raw requests to the provider.
type Forwarder interface {
	Forward(ctx context.Context, action string, body any) (*ForwardedResponse, error)
}

// Handler proxies OTP requests from widgets that talk to the provider directly.
type Handler struct {
	forwarder Forwarder
	logger    *logging.Logger
}

// NewHandler creates a new OTP proxy handler
func NewHandler(forwarder Forwarder, logger *logging.Logger) *Handler {
	return &Handler{forwarder: forwarder, logger: logging.OrDefault(logger)}
}

// SendRequest is the body of POST /api/otp/send.
type SendRequest struct {
	CountryCode string `json:"countryCode"`
	Mobile      string `json:"mobile"`
}

// VerifyRequest is the body of POST /api/otp/verify.
type VerifyRequest struct {
	CountryCode string `json:"countryCode"`
	Mobile      string `json:"mobile"`
	OTP         string `json:"otp"`
}

// Send handles POST /api/otp/send
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validation.ValidatePhone(req.Mobile); msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	if req.CountryCode == "" {
		req.CountryCode = defaultCountryCode
	}
	h.relay(w, r, "send", req, "OTP sent successfully", "Failed to send OTP: ")
}

// Verify handles POST /api/otp/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validation.ValidatePhone(req.Mobile); msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validation.ValidateOTP(req.OTP); msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	if req.CountryCode == "" {
		req.CountryCode = defaultCountryCode
	}
	h.relay(w, r, "verify", req, "Verification successful", "Error verifying OTP: ")
}

func (h *Handler) relay(w http.ResponseWriter, r *http.Request, action string, body any, fallback, errPrefix string) {
	resp, err := h.forwarder.Forward(r.Context(), action, body)
	if err != nil {
		h.logger.Error("otp proxy request failed", "action", action, "error", err)
		writeMessage(w, http.StatusInternalServerError, errPrefix+err.Error())
		return
	}

	h.logger.Info("otp proxy response", "action", action, "status", resp.StatusCode)
	if strings.Contains(strings.ToLower(resp.ContentType), "application/json") && json.Valid(resp.Body) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
		return
	}
	msg := strings.TrimSpace(string(resp.Body))
	if msg == "" {
		msg = fallback
	}
	writeMessage(w, resp.StatusCode, msg)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
