package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyTTL         = 24 * time.Hour
	defaultHistorySize = 10
)

// Question is one stored user question.
type Question struct {
	Text    string    `json:"question"`
	AskedAt time.Time `json:"timestamp"`
}

// HistoryStore keeps the most recent questions per user.
type HistoryStore interface {
	Append(ctx context.Context, userID string, q Question) error
	Recent(ctx context.Context, userID string) ([]Question, error)
}

// RedisHistory stores questions as a capped Redis list.
type RedisHistory struct {
	redis  *redis.Client
	size   int64
	tracer trace.Tracer
}

func NewRedisHistory(client *redis.Client, size int) *RedisHistory {
	if client == nil {
		panic("assistant: redis client cannot be nil")
	}
	if size <= 0 {
		size = defaultHistorySize
	}
	return &RedisHistory{
		redis:  client,
		size:   int64(size),
		tracer: otel.Tracer("listing.internal.assistant.history"),
	}
}

func (s *RedisHistory) Append(ctx context.Context, userID string, q Question) error {
	ctx, span := s.tracer.Start(ctx, "assistant.append_history")
	defer span.End()

	data, err := json.Marshal(q)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to marshal question: %w", err)
	}
	key := historyKey(userID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.size, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to persist history: %w", err)
	}
	return nil
}

func (s *RedisHistory) Recent(ctx context.Context, userID string) ([]Question, error) {
	ctx, span := s.tracer.Start(ctx, "assistant.load_history")
	defer span.End()

	raw, err := s.redis.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to load history: %w", err)
	}
	out := make([]Question, 0, len(raw))
	for _, item := range raw {
		var q Question
		if err := json.Unmarshal([]byte(item), &q); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("assistant: failed to decode history: %w", err)
		}
		out = append(out, q)
	}
	return out, nil
}

func historyKey(userID string) string {
	return fmt.Sprintf("chat_history:%s", userID)
}

// MemoryHistory is the in-process HistoryStore used without Redis.
type MemoryHistory struct {
	mu    sync.Mutex
	size  int
	items map[string][]Question
}

func NewMemoryHistory(size int) *MemoryHistory {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &MemoryHistory{size: size, items: make(map[string][]Question)}
}

func (m *MemoryHistory) Append(ctx context.Context, userID string, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.items[userID], q)
	if len(list) > m.size {
		list = list[len(list)-m.size:]
	}
	m.items[userID] = list
	return nil
}

func (m *MemoryHistory) Recent(ctx context.Context, userID string) ([]Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items[userID]), nil
}
