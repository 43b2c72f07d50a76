package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// QuizPlayer is satisfied by *Quiz.
type QuizPlayer interface {
	Generate(ctx context.Context, userID, city string) (QuizRound, error)
	Submit(ctx context.Context, userID string, answers []string) (QuizResult, error)
}

type quizSubmitRequest struct {
	UserID  string   `json:"user_id"`
	Answers []string `json:"answers"`
}

// QuizHandler serves POST /api/quiz/game and POST /api/quiz/submit.
type QuizHandler struct {
	quiz   QuizPlayer
	logger *logging.Logger
}

func NewQuizHandler(quiz QuizPlayer, logger *logging.Logger) *QuizHandler {
	return &QuizHandler{quiz: quiz, logger: logging.OrDefault(logger)}
}

// Game returns a new round. The body is the chat request shape; only city
// and user_id are read.
func (h *QuizHandler) Game(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid request body"})
		return
	}
	round, err := h.quiz.Generate(r.Context(), requestUser(r, req.UserID), req.City)
	if err != nil {
		h.logger.Error("quiz generation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, chatResponse{Error: "Error generating quiz."})
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// Submit grades the answers for the user's current round.
func (h *QuizHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req quizSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid request body"})
		return
	}
	result, err := h.quiz.Submit(r.Context(), requestUser(r, req.UserID), req.Answers)
	switch {
	case errors.Is(err, ErrNoActiveQuiz):
		writeJSON(w, http.StatusNotFound, map[string]string{"status": QuizError, "message": "No active quiz found"})
	case errors.Is(err, ErrNoQuizQuestions):
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": QuizError, "message": "No questions found for this quiz"})
	case err != nil:
		h.logger.Error("quiz submit failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, chatResponse{Error: "Error submitting quiz answers."})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// requestUser prefers the body's user id, then the X-User-Phone header.
func requestUser(r *http.Request, bodyID string) string {
	if id := strings.TrimSpace(bodyID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-User-Phone"))
}
