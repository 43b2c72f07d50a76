// Package assistant answers free-form real-estate questions once a lead has
// been submitted.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const (
	historyAttempts = 3
	maxOutputTokens = 8192
	temperature     = 0.7
	anonymousUser   = "anonymous"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("assistant: question is empty")

// Service builds the prompt from recent history and asks the model.
type Service struct {
	llm        LLMClient
	history    HistoryStore
	brand      string
	logger     *logging.Logger
	metrics    *metrics.FunnelMetrics
	retryDelay time.Duration
	now        func() time.Time
}

type Option func(*Service)

func WithHistory(h HistoryStore) Option           { return func(s *Service) { s.history = h } }
func WithBrand(brand string) Option               { return func(s *Service) { s.brand = brand } }
func WithMetrics(m *metrics.FunnelMetrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(llm LLMClient, logger *logging.Logger, opts ...Option) *Service {
	if llm == nil {
		llm = StubClient{}
	}
	s := &Service{
		llm:        llm,
		logger:     logging.OrDefault(logger),
		retryDelay: time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = NewMemoryHistory(defaultHistorySize)
	}
	return s
}

// Answer records question for userID and returns the model's HTML reply.
// History failures are logged and never fail the turn.
func (s *Service) Answer(ctx context.Context, userID, city, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if strings.TrimSpace(userID) == "" {
		userID = anonymousUser
	}

	s.withRetry(ctx, "append", func() error {
		return s.history.Append(ctx, userID, Question{Text: question, AskedAt: s.now().UTC()})
	})
	var recent []Question
	s.withRetry(ctx, "load", func() error {
		var err error
		recent, err = s.history.Recent(ctx, userID)
		return err
	})
	texts := make([]string, 0, len(recent))
	for _, q := range recent {
		texts = append(texts, q.Text)
	}

	prompt := SystemPrompt(s.brand, city, texts)
	start := time.Now()
	resp, err := s.llm.Complete(ctx, LLMRequest{
		System:      []string{prompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "User Query: " + question}},
		MaxTokens:   maxOutputTokens,
		Temperature: temperature,
	})
	if err != nil {
		s.metrics.ObserveUpstream("assistant", "error", start)
		return "", err
	}
	s.metrics.ObserveUpstream("assistant", "ok", start)
	return StripFences(resp.Text), nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func() error) {
	for attempt := 1; attempt <= historyAttempts; attempt++ {
		err := fn()
		if err == nil {
			return
		}
		s.logger.Warn("chat history operation failed", "op", op, "attempt", attempt, "error", err)
		if attempt == historyAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}
