package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const quizStateTTL = 24 * time.Hour

// ErrNoActiveQuiz is returned when a user has no stored quiz.
var ErrNoActiveQuiz = errors.New("assistant: no active quiz")

// QuizQuestion is one multiple choice question. CorrectAnswer is one of Options.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// QuizState is a user's progress through the membership quiz.
type QuizState struct {
	UserID         string         `json:"user_id"`
	City           string         `json:"city"`
	AttemptsLeft   int            `json:"attempts_left"`
	QuestionsAsked []string       `json:"questions_asked"`
	Score          int            `json:"score"`
	Current        []QuizQuestion `json:"current_questions,omitempty"`
}

// QuizStore persists quiz state by user id.
type QuizStore interface {
	Load(ctx context.Context, userID string) (*QuizState, error)
	Save(ctx context.Context, state *QuizState) error
	Delete(ctx context.Context, userID string) error
}

// RedisQuizStore keeps each state as a JSON string with a day-long TTL.
type RedisQuizStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisQuizStore(client *redis.Client) *RedisQuizStore {
	if client == nil {
		panic("assistant: redis client cannot be nil")
	}
	return &RedisQuizStore{redis: client, tracer: otel.Tracer("listing.internal.assistant.quiz")}
}

func (s *RedisQuizStore) Load(ctx context.Context, userID string) (*QuizState, error) {
	ctx, span := s.tracer.Start(ctx, "assistant.load_quiz")
	defer span.End()

	raw, err := s.redis.Get(ctx, quizKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoActiveQuiz
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to load quiz: %w", err)
	}
	var state QuizState
	if err := json.Unmarshal(raw, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to decode quiz: %w", err)
	}
	return &state, nil
}

func (s *RedisQuizStore) Save(ctx context.Context, state *QuizState) error {
	ctx, span := s.tracer.Start(ctx, "assistant.save_quiz")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to marshal quiz: %w", err)
	}
	if err := s.redis.Set(ctx, quizKey(state.UserID), data, quizStateTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to persist quiz: %w", err)
	}
	return nil
}

func (s *RedisQuizStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, quizKey(userID)).Err(); err != nil {
		return fmt.Errorf("assistant: failed to delete quiz: %w", err)
	}
	return nil
}

func quizKey(userID string) string {
	return "quiz_state:" + userID
}

// MemoryQuizStore is the in-process QuizStore used without Redis.
type MemoryQuizStore struct {
	mu     sync.Mutex
	states map[string]QuizState
}

func NewMemoryQuizStore() *MemoryQuizStore {
	return &MemoryQuizStore{states: make(map[string]QuizState)}
}

func (m *MemoryQuizStore) Load(ctx context.Context, userID string) (*QuizState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	if !ok {
		return nil, ErrNoActiveQuiz
	}
	state.QuestionsAsked = slices.Clone(state.QuestionsAsked)
	state.Current = slices.Clone(state.Current)
	return &state, nil
}

func (m *MemoryQuizStore) Save(ctx context.Context, state *QuizState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *state
	stored.QuestionsAsked = slices.Clone(state.QuestionsAsked)
	stored.Current = slices.Clone(state.Current)
	m.states[state.UserID] = stored
	return nil
}

func (m *MemoryQuizStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}
