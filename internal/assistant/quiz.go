package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const (
	quizQuestions   = 3
	quizOptions     = 4
	quizAttempts    = 3
	quizMaxTokens   = 2048
	quizTemperature = 0.3
	defaultQuizCity = "Wanaparthy"
)

// Quiz outcome statuses as the widget sees them.
const (
	QuizSuccess = "success"
	QuizRetry   = "retry"
	QuizFailed  = "failed"
	QuizError   = "error"
)

// ErrNoQuizQuestions is returned when answers arrive before any round was generated.
var ErrNoQuizQuestions = errors.New("assistant: no questions found for this quiz")

// Button is a follow-up action offered with a quiz message.
type Button struct {
	Text   string `json:"text"`
	Action string `json:"action"`
}

var (
	buttonNewListing = Button{Text: "Start New Listing", Action: "start_new_listing"}
	buttonMembership = Button{Text: "Buy Membership", Action: "buy_membership"}
	buttonPlayAgain  = Button{Text: "Play Quiz Again", Action: "play_quiz"}
)

// PublicQuestion is a QuizQuestion without its answer.
type PublicQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// QuizRound is the result of Generate.
type QuizRound struct {
	Status       string           `json:"status"`
	Message      string           `json:"message"`
	Questions    []PublicQuestion `json:"questions,omitempty"`
	AttemptsLeft int              `json:"attempts_left"`
	Buttons      []Button         `json:"buttons,omitempty"`
}

// QuizResult is the graded outcome of Submit.
type QuizResult struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Score   string   `json:"score"`
	Buttons []Button `json:"buttons"`
}

// Quiz runs the three-question membership quiz. A user gets three graded
// attempts; state is dropped after a perfect score or the last attempt.
type Quiz struct {
	llm     LLMClient
	store   QuizStore
	logger  *logging.Logger
	metrics *metrics.FunnelMetrics

	// mu serializes load-modify-save within this process.
	mu sync.Mutex
}

type QuizOption func(*Quiz)

func WithQuizStore(s QuizStore) QuizOption                { return func(q *Quiz) { q.store = s } }
func WithQuizMetrics(m *metrics.FunnelMetrics) QuizOption { return func(q *Quiz) { q.metrics = m } }

func NewQuiz(llm LLMClient, logger *logging.Logger, opts ...QuizOption) *Quiz {
	if llm == nil {
		llm = StubClient{}
	}
	q := &Quiz{llm: llm, logger: logging.OrDefault(logger)}
	for _, opt := range opts {
		opt(q)
	}
	if q.store == nil {
		q.store = NewMemoryQuizStore()
	}
	return q
}

// Generate starts or continues userID's quiz with three fresh questions about city.
func (q *Quiz) Generate(ctx context.Context, userID, city string) (QuizRound, error) {
	userID = orAnonymous(userID)
	if strings.TrimSpace(city) == "" {
		city = defaultQuizCity
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	state, err := q.store.Load(ctx, userID)
	if errors.Is(err, ErrNoActiveQuiz) {
		state = &QuizState{UserID: userID, City: city, AttemptsLeft: quizAttempts, QuestionsAsked: []string{}}
		err = q.store.Save(ctx, state)
	}
	if err != nil {
		return QuizRound{}, err
	}
	if state.AttemptsLeft <= 0 {
		return QuizRound{
			Status:  QuizError,
			Message: "No attempts left. Please start a new listing.",
			Buttons: []Button{buttonNewListing},
		}, nil
	}

	start := time.Now()
	resp, err := q.llm.Complete(ctx, LLMRequest{
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: quizPrompt(city, state.QuestionsAsked)}},
		MaxTokens:   quizMaxTokens,
		Temperature: quizTemperature,
		JSON:        true,
	})
	if err != nil {
		q.metrics.ObserveUpstream("quiz", "error", start)
		return QuizRound{}, fmt.Errorf("assistant: quiz generation failed: %w", err)
	}
	q.metrics.ObserveUpstream("quiz", "ok", start)

	questions := normalizeQuestions(q.parseQuestions(resp.Text, city), city, state.QuestionsAsked)
	state.Current = questions
	for _, item := range questions {
		state.QuestionsAsked = append(state.QuestionsAsked, item.Question)
	}
	if err := q.store.Save(ctx, state); err != nil {
		return QuizRound{}, err
	}

	public := make([]PublicQuestion, 0, len(questions))
	for _, item := range questions {
		public = append(public, PublicQuestion{Question: item.Question, Options: item.Options})
	}
	return QuizRound{
		Status:       QuizSuccess,
		Message:      fmt.Sprintf("You have %d chance(s) to get up to 50%% off on our membership!", state.AttemptsLeft),
		Questions:    public,
		AttemptsLeft: state.AttemptsLeft,
	}, nil
}

// Submit grades answers against the current round, in question order.
func (q *Quiz) Submit(ctx context.Context, userID string, answers []string) (QuizResult, error) {
	userID = orAnonymous(userID)

	q.mu.Lock()
	defer q.mu.Unlock()

	state, err := q.store.Load(ctx, userID)
	if err != nil {
		return QuizResult{}, err
	}
	if len(state.Current) == 0 {
		return QuizResult{}, ErrNoQuizQuestions
	}

	correct := 0
	for i, answer := range answers {
		if i < len(state.Current) && answer == state.Current[i].CorrectAnswer {
			correct++
		}
	}
	state.AttemptsLeft--
	state.Score = correct
	if err := q.store.Save(ctx, state); err != nil {
		return QuizResult{}, err
	}

	result := QuizResult{Score: fmt.Sprintf("%d/%d", correct, quizQuestions)}
	switch {
	case correct == quizQuestions:
		result.Status = QuizSuccess
		result.Message = "Congratulations! You got all answers correct! Buy our membership now and get up to 50% off!"
		result.Buttons = []Button{buttonMembership, buttonNewListing}
	case state.AttemptsLeft > 0:
		result.Status = QuizRetry
		result.Message = fmt.Sprintf("You got %s correct. %d chance(s) left. Try again!", result.Score, state.AttemptsLeft)
		result.Buttons = []Button{buttonPlayAgain, buttonNewListing}
		return result, nil
	default:
		result.Status = QuizFailed
		result.Message = fmt.Sprintf("You got %s correct. No attempts left. Start a new listing to try again!", result.Score)
		result.Buttons = []Button{buttonNewListing}
	}
	if err := q.store.Delete(ctx, userID); err != nil {
		q.logger.Warn("failed to reset quiz", "error", err)
	}
	return result, nil
}

func quizPrompt(city string, asked []string) string {
	seen := "None"
	if len(asked) > 0 {
		seen = strings.Join(asked, ", ")
	}
	return fmt.Sprintf(
		"You are a Real-estate Quiz generator for %[1]s. "+
			"Generate exactly %[2]d unique multiple choice questions about the real-estate market in %[1]s. "+
			"Each question should have exactly 4 options (A, B, C, D) and one correct answer. "+
			"Do not repeat these questions: %[3]s. "+
			"Return ONLY a valid JSON array with this exact structure: "+
			`[{"question": "Your question here?", "options": ["Option A", "Option B", "Option C", "Option D"], "correct_answer": "Option A"}]. `+
			"Do not include any markdown formatting, explanations, or additional text. "+
			"Make sure the correct_answer matches exactly one of the options.",
		city, quizQuestions, seen)
}

// rawQuestion tells an absent field from an empty one.
type rawQuestion struct {
	Question      *string   `json:"question"`
	Options       *[]string `json:"options"`
	CorrectAnswer *string   `json:"correct_answer"`
}

// parseQuestions decodes the model's array. Entries that are not objects are
// skipped; an unparseable reply yields the built-in questions for city.
func (q *Quiz) parseQuestions(text, city string) []rawQuestion {
	text = StripFences(strings.ReplaceAll(text, "```json", ""))
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		q.logger.Warn("quiz reply is not a JSON array, using fallback questions", "error", err)
		return fallbackQuestions(city)
	}
	out := make([]rawQuestion, 0, len(items))
	for _, item := range items {
		var rq rawQuestion
		if err := json.Unmarshal(item, &rq); err != nil {
			continue
		}
		out = append(out, rq)
	}
	return out
}

// normalizeQuestions returns exactly three questions with four options each
// and an answer among the options. Questions already asked are used only
// when the reply has too few new ones.
func normalizeQuestions(raw []rawQuestion, city string, asked []string) []QuizQuestion {
	var fresh, repeats []QuizQuestion
	for i, rq := range raw {
		text := fmt.Sprintf("Sample question %d about %s real estate?", i+1, city)
		if rq.Question != nil {
			text = *rq.Question
		}
		same := func(e QuizQuestion) bool { return e.Question == text }
		if slices.ContainsFunc(fresh, same) || slices.ContainsFunc(repeats, same) {
			continue
		}
		options := []string{"Option A", "Option B", "Option C", "Option D"}
		if rq.Options != nil {
			options = padOptions(*rq.Options)
		}
		answer := options[0]
		if rq.CorrectAnswer != nil && slices.Contains(options, *rq.CorrectAnswer) {
			answer = *rq.CorrectAnswer
		}
		item := QuizQuestion{Question: text, Options: options, CorrectAnswer: answer}
		if slices.Contains(asked, text) {
			repeats = append(repeats, item)
		} else {
			fresh = append(fresh, item)
		}
	}
	out := append(fresh, repeats...)
	if len(out) > quizQuestions {
		out = out[:quizQuestions]
	}
	for len(out) < quizQuestions {
		out = append(out, QuizQuestion{
			Question:      fmt.Sprintf("What is a key factor to consider when buying property in %s?", city),
			Options:       []string{"Location", "Price", "Amenities", "All of the above"},
			CorrectAnswer: "All of the above",
		})
	}
	return out
}

func padOptions(options []string) []string {
	if len(options) >= quizOptions {
		return slices.Clone(options[:quizOptions])
	}
	out := slices.Clone(options)
	for i := len(options); i < quizOptions; i++ {
		out = append(out, "Option "+string(rune('A'+i)))
	}
	return out
}

func fallbackQuestions(city string) []rawQuestion {
	build := func(question, answer string, options ...string) rawQuestion {
		return rawQuestion{Question: &question, Options: &options, CorrectAnswer: &answer}
	}
	return []rawQuestion{
		build(fmt.Sprintf("What is the average property price range in %s?", city),
			"₹30-50 lakhs", "₹20-30 lakhs", "₹30-50 lakhs", "₹50-70 lakhs", "₹70+ lakhs"),
		build(fmt.Sprintf("Which area in %s is considered prime for residential investment?", city),
			"City Center", "City Center", "Outskirts", "Industrial Area", "Agricultural Zone"),
		build(fmt.Sprintf("What type of properties are most in demand in %s?", city),
			"2-3 BHK Apartments", "1 BHK Apartments", "2-3 BHK Apartments", "Villas", "Commercial Spaces"),
	}
}

func orAnonymous(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return anonymousUser
	}
	return userID
}
