package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizReply = "```json\n" + `[
  {"question": "Median rent for a 2BHK in Pune?", "options": ["₹15k", "₹25k", "₹35k", "₹45k"], "correct_answer": "₹25k"},
  {"question": "Which Pune suburb hosts Hinjewadi IT park?", "options": ["Wakad", "Hinjewadi", "Kothrud", "Hadapsar"], "correct_answer": "Hinjewadi"},
  {"question": "Typical stamp duty in Pune?", "options": ["3%", "5%", "6%", "8%"], "correct_answer": "6%"}
]` + "\n```"

var quizAnswers = []string{"₹25k", "Hinjewadi", "6%"}

func TestQuizPerfectScoreResetsRedisState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	llm := &stubLLMClient{response: LLMResponse{Text: quizReply}}
	quiz := NewQuiz(llm, nil, WithQuizStore(NewRedisQuizStore(client)))
	ctx := context.Background()

	round, err := quiz.Generate(ctx, "9876543210", "Pune")
	require.NoError(t, err)
	assert.Equal(t, QuizSuccess, round.Status)
	assert.Equal(t, 3, round.AttemptsLeft)
	assert.Equal(t, "You have 3 chance(s) to get up to 50% off on our membership!", round.Message)
	require.Len(t, round.Questions, 3)
	assert.Equal(t, "Which Pune suburb hosts Hinjewadi IT park?", round.Questions[1].Question)

	raw, err := json.Marshal(round)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_answer")

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.True(t, req.JSON)
	assert.InDelta(t, 0.3, req.Temperature, 1e-6)
	assert.Contains(t, req.Messages[0].Content, "Do not repeat these questions: None.")
	assert.True(t, mr.Exists("quiz_state:9876543210"))
	assert.Greater(t, mr.TTL("quiz_state:9876543210").Hours(), 23.0)

	res, err := quiz.Submit(ctx, "9876543210", quizAnswers)
	require.NoError(t, err)
	assert.Equal(t, QuizSuccess, res.Status)
	assert.Equal(t, "3/3", res.Score)
	assert.Equal(t, []Button{buttonMembership, buttonNewListing}, res.Buttons)
	assert.False(t, mr.Exists("quiz_state:9876543210"))
}

func TestQuizAttemptsRunOut(t *testing.T) {
	store := NewMemoryQuizStore()
	llm := &stubLLMClient{response: LLMResponse{Text: quizReply}}
	quiz := NewQuiz(llm, nil, WithQuizStore(store))
	ctx := context.Background()

	for remaining := 2; remaining >= 1; remaining-- {
		_, err := quiz.Generate(ctx, "u-1", "Pune")
		require.NoError(t, err)
		res, err := quiz.Submit(ctx, "u-1", []string{"₹25k", "Wakad"})
		require.NoError(t, err)
		assert.Equal(t, QuizRetry, res.Status)
		assert.Equal(t, "1/3", res.Score)
		assert.Equal(t, []Button{buttonPlayAgain, buttonNewListing}, res.Buttons)
		state, err := store.Load(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, remaining, state.AttemptsLeft)
		assert.Equal(t, 1, state.Score)
	}

	round, err := quiz.Generate(ctx, "u-1", "Pune")
	require.NoError(t, err)
	assert.Equal(t, 1, round.AttemptsLeft)
	assert.Contains(t, llm.requests[2].Messages[0].Content, "Median rent for a 2BHK in Pune?")

	res, err := quiz.Submit(ctx, "u-1", nil)
	require.NoError(t, err)
	assert.Equal(t, QuizFailed, res.Status)
	assert.Equal(t, "You got 0/3 correct. No attempts left. Start a new listing to try again!", res.Message)
	_, err = store.Load(ctx, "u-1")
	assert.ErrorIs(t, err, ErrNoActiveQuiz)

	again, err := quiz.Generate(ctx, "u-1", "Pune")
	require.NoError(t, err)
	assert.Equal(t, 3, again.AttemptsLeft)
}

func TestQuizFallbackQuestions(t *testing.T) {
	quiz := NewQuiz(&stubLLMClient{response: LLMResponse{Text: "<p>Here is a quiz!</p>"}}, nil)
	ctx := context.Background()

	round, err := quiz.Generate(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, round.Questions, 3)
	assert.Equal(t, "What is the average property price range in Wanaparthy?", round.Questions[0].Question)

	res, err := quiz.Submit(ctx, "", []string{"₹30-50 lakhs", "City Center", "2-3 BHK Apartments"})
	require.NoError(t, err)
	assert.Equal(t, QuizSuccess, res.Status)
}

func TestQuizErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewQuiz(nil, nil).Submit(ctx, "nobody", []string{"a"})
	assert.ErrorIs(t, err, ErrNoActiveQuiz)

	store := NewMemoryQuizStore()
	require.NoError(t, store.Save(ctx, &QuizState{UserID: "u-2", AttemptsLeft: 3}))
	_, err = NewQuiz(nil, nil, WithQuizStore(store)).Submit(ctx, "u-2", []string{"a"})
	assert.ErrorIs(t, err, ErrNoQuizQuestions)

	require.NoError(t, store.Save(ctx, &QuizState{UserID: "u-3", AttemptsLeft: 0}))
	llm := &stubLLMClient{}
	round, err := NewQuiz(llm, nil, WithQuizStore(store)).Generate(ctx, "u-3", "Pune")
	require.NoError(t, err)
	assert.Equal(t, QuizError, round.Status)
	assert.Equal(t, []Button{buttonNewListing}, round.Buttons)
	assert.Empty(t, llm.requests)

	failing := &stubLLMClient{err: errors.New("quota")}
	_, err = NewQuiz(failing, nil).Generate(ctx, "u-4", "Pune")
	require.Error(t, err)
}

func TestNormalizeQuestions(t *testing.T) {
	quiz := NewQuiz(nil, nil)
	raw := quiz.parseQuestions(`[
		"not an object",
		{"question": "Q1", "options": ["a", "b"], "correct_answer": "z"},
		{"options": ["a", "b", "c", "d", "e"], "correct_answer": "e"},
		{"question": "Seen before", "options": ["w", "x", "y", "z"], "correct_answer": "y"},
		{"question": "Q1"}
	]`, "Pune")
	require.Len(t, raw, 4)

	got := normalizeQuestions(raw, "Pune", []string{"Seen before"})
	require.Len(t, got, 3)
	assert.Equal(t, QuizQuestion{Question: "Q1", Options: []string{"a", "b", "Option C", "Option D"}, CorrectAnswer: "a"}, got[0])
	assert.Equal(t, "Sample question 2 about Pune real estate?", got[1].Question)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got[1].Options)
	assert.Equal(t, "a", got[1].CorrectAnswer)
	assert.Equal(t, "Seen before", got[2].Question)

	padded := normalizeQuestions(nil, "Pune", nil)
	require.Len(t, padded, 3)
	for _, q := range padded {
		assert.Equal(t, "All of the above", q.CorrectAnswer)
		assert.Len(t, q.Options, 4)
	}
}
