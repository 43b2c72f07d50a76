package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

type stubLLMClient struct {
	response LLMResponse
	err      error
	requests []LLMRequest
}

func (s *stubLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return s.response, nil
}

type flakyHistory struct {
	*MemoryHistory
	failures int
	calls    int
}

func (f *flakyHistory) Append(ctx context.Context, userID string, q Question) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("history unavailable")
	}
	return f.MemoryHistory.Append(ctx, userID, q)
}

func TestServiceAnswerUsesHistoryAndStripsFences(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	llm := &stubLLMClient{response: LLMResponse{Text: "```html\n<p>Prices are rising.</p>\n```"}}
	svc := NewService(llm, logging.Default(), WithHistory(NewRedisHistory(client, 10)))

	_, err := svc.Answer(context.Background(), "9876543210", "Mumbai", "What is the rent in Andheri?")
	require.NoError(t, err)
	reply, err := svc.Answer(context.Background(), "9876543210", "Mumbai", "And in Bandra?")
	require.NoError(t, err)

	assert.Equal(t, "<p>Prices are rising.</p>", reply)
	require.Len(t, llm.requests, 2)
	last := llm.requests[1]
	require.Len(t, last.System, 1)
	assert.Contains(t, last.System[0], "Previous Question: What is the rent in Andheri?\nPrevious Question: And in Bandra?")
	assert.Contains(t, last.System[0], "Mumbai")
	assert.Equal(t, "User Query: And in Bandra?", last.Messages[0].Content)
	assert.Equal(t, int32(maxOutputTokens), last.MaxTokens)
}

func TestServiceAnswerRejectsEmptyQuestion(t *testing.T) {
	svc := NewService(&stubLLMClient{}, nil)
	_, err := svc.Answer(context.Background(), "u", "", "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestServiceAnswerRetriesHistory(t *testing.T) {
	history := &flakyHistory{MemoryHistory: NewMemoryHistory(10), failures: 2}
	svc := NewService(&stubLLMClient{response: LLMResponse{Text: "ok"}}, nil, WithHistory(history))
	svc.retryDelay = time.Millisecond

	_, err := svc.Answer(context.Background(), "u", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, 3, history.calls)
	recent, _ := history.Recent(context.Background(), "u")
	assert.Len(t, recent, 1)
}

func TestServiceAnswerHistoryFailureDoesNotFailTurn(t *testing.T) {
	history := &flakyHistory{MemoryHistory: NewMemoryHistory(10), failures: 10}
	llm := &stubLLMClient{response: LLMResponse{Text: "ok"}}
	svc := NewService(llm, nil, WithHistory(history))
	svc.retryDelay = time.Millisecond

	reply, err := svc.Answer(context.Background(), "", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Contains(t, llm.requests[0].System[0], noHistory)
}

func TestServiceAnswerPropagatesModelError(t *testing.T) {
	svc := NewService(&stubLLMClient{err: errors.New("quota")}, nil)
	_, err := svc.Answer(context.Background(), "u", "", "hello")
	assert.ErrorContains(t, err, "quota")
}

func TestRedisHistoryKeepsMostRecent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisHistory(client, 3)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, store.Append(ctx, "u1", Question{Text: fmt.Sprintf("q%d", i)}))
	}
	recent, err := store.Recent(ctx, "u1")
	require.NoError(t, err)
	texts := make([]string, 0, len(recent))
	for _, q := range recent {
		texts = append(texts, q.Text)
	}
	assert.Equal(t, []string{"q2", "q3", "q4"}, texts)
	assert.True(t, mr.TTL(historyKey("u1")) > 0)

	empty, err := store.Recent(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryHistoryCaps(t *testing.T) {
	h := NewMemoryHistory(2)
	ctx := context.Background()
	for _, q := range []string{"a", "b", "c"} {
		_ = h.Append(ctx, "u", Question{Text: q})
	}
	recent, _ := h.Recent(ctx, "u")
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Text)
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("", "", nil)
	assert.Contains(t, p, "SquareYards")
	assert.Contains(t, p, primeURL)
	assert.True(t, strings.HasSuffix(p, noHistory))
	assert.NotContains(t, p, "Tailor the response")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "<b>x</b>", StripFences("```html<b>x</b>```"))
	assert.Equal(t, "plain", StripFences(" plain "))
}
