package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const fallbackReply = "Sorry, something went wrong. Please try again."

// Answerer is satisfied by *Service.
type Answerer interface {
	Answer(ctx context.Context, userID, city, question string) (string, error)
}

type chatRequest struct {
	Message string `json:"message"`
	City    string `json:"city,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

type chatResponse struct {
	Status   string `json:"status,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Handler serves POST /api/chat.
type Handler struct {
	answerer Answerer
	logger   *logging.Logger
}

func NewHandler(answerer Answerer, logger *logging.Logger) *Handler {
	return &Handler{answerer: answerer, logger: logging.OrDefault(logger)}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid request body"})
		return
	}
	userID := requestUser(r, req.UserID)
	if userID == "" {
		h.logger.Warn("chat request without user id", "remote", r.RemoteAddr)
	}

	reply, err := h.answerer.Answer(r.Context(), userID, req.City, req.Message)
	if errors.Is(err, ErrEmptyQuestion) {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "message is required"})
		return
	}
	if err != nil {
		h.logger.Error("chat answer failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, chatResponse{Error: "Error generating chat response."})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Status: "success", Response: reply})
}

// Fallback is the reply shown when the model cannot answer.
func Fallback() string { return fallbackReply }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
