package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/listing-lead-assistant/internal/assistant"
	"github.com/wolfman30/listing-lead-assistant/internal/cities"
	"github.com/wolfman30/listing-lead-assistant/internal/conversation"
	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/internal/otp"
	"github.com/wolfman30/listing-lead-assistant/internal/webchat"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const testSecret = "router-secret"

type stubForwarder struct {
	actions []string
}

func (f *stubForwarder) Forward(ctx context.Context, action string, body any) (*otp.ForwardedResponse, error) {
	f.actions = append(f.actions, action)
	return &otp.ForwardedResponse{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(`{"status":"sent"}`)}, nil
}

type nopProvider struct{}

func (nopProvider) Send(ctx context.Context, mobile string) error { return nil }

func (nopProvider) Verify(ctx context.Context, mobile, code string) (otp.VerifyResult, error) {
	return otp.VerifyResult{Status: otp.VerifyInvalid, StatusCode: http.StatusBadRequest}, nil
}

type nopIntake struct{}

func (nopIntake) Register(ctx context.Context, p leads.IntakePayload) (*leads.IntakeResponse, error) {
	return &leads.IntakeResponse{StatusCode: http.StatusOK}, nil
}

type testEnv struct {
	router    http.Handler
	forwarder *stubForwarder
	repo      *leads.InMemoryRepository
}

func newTestRouter(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	logger := logging.New("error")
	repo := leads.NewInMemoryRepository()
	forwarder := &stubForwarder{}

	comps := conversation.Components{
		Directory: cities.NewStaticDirectory([]cities.Entry{{Name: "Pune", ID: "9"}}),
		NewVerifier: func() conversation.Verifier {
			return otp.NewManager(nopProvider{}, otp.DefaultSettings())
		},
		Gateway: leads.NewGateway(nopIntake{}, leads.GatewayConfig{}, logger),
		Logger:  logger,
	}
	registry := conversation.NewRegistry(comps.NewSession, time.Minute, logger, nil)

	cfg := &Config{
		Logger:           logger,
		WebChat:          webchat.NewHandler(registry, logger),
		OTPHandler:       otp.NewHandler(forwarder, logger),
		AssistantHandler: assistant.NewHandler(assistant.NewService(&assistant.StubClient{Reply: "Prime listings get more views."}, logger), logger),
		QuizHandler:      assistant.NewQuizHandler(assistant.NewQuiz(assistant.StubClient{}, logger), logger),
		LeadsHandler:     leads.NewHandler(repo, logger),
		AdminAuthSecret:  testSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}
	for _, m := range mutate {
		m(cfg)
	}
	return &testEnv{router: New(cfg), forwarder: forwarder, repo: repo}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, map[string]string{"status": "ok", "redis": "disabled", "database": "disabled"}, resp)
}

func TestRouterHealthReportsStoreFailure(t *testing.T) {
	env := newTestRouter(t, func(c *Config) {
		c.Health = NewHealthHandler(
			func(ctx context.Context) error { return nil },
			func(ctx context.Context) error { return errors.New("connection refused") },
		)
	})

	rr := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp["status"])
	assert.Equal(t, "ok", resp["redis"])
	assert.Equal(t, "error", resp["database"])
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# metrics")
}

func TestRouterChatSessionFlow(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodPost, "/chat/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.NotEmpty(t, created.SessionID)

	rr = env.do(http.MethodPost, "/chat/sessions/"+created.SessionID+"/answer", `{"field":"userType","value":"Owner"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodGet, "/chat/sessions/"+created.SessionID+"/cities?q=pu", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Pune")

	rr = env.do(http.MethodGet, "/chat/sessions/missing/events?wait=0", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterOTPProxy(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodPost, "/api/otp/send", `{"mobile":"9876543210"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(http.MethodPost, "/api/otp/verify", `{"mobile":"9876543210","otp":"1234"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"send", "verify"}, env.forwarder.actions)
}

func TestRouterAssistantChat(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodPost, "/api/chat", `{"message":"What is Prime?","city":"Pune"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Prime listings get more views.")
}

func TestRouterQuiz(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodPost, "/api/quiz/submit", `{"user_id":"9876543210","answers":[]}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(http.MethodPost, "/api/quiz/game", `{"message":"play","city":"Pune"}`, "X-User-Phone", "9876543210")
	require.Equal(t, http.StatusOK, rr.Code)
	var round assistant.QuizRound
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&round))
	require.Len(t, round.Questions, 3)
	assert.Equal(t, 3, round.AttemptsLeft)

	rr = env.do(http.MethodPost, "/api/quiz/submit", `{"user_id":"9876543210","answers":["₹30-50 lakhs","City Center","2-3 BHK Apartments"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"score":"3/3"`)
}

func TestRouterSubmitAndAdmin(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodPost, "/submit", `{"userType":"Owner","listingType":"Rent","city":"Pune","name":"Asha Rao","number":"9876543210"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(http.MethodGet, "/admin/leads", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodGet, "/admin/leads", "", "Authorization", "Bearer "+adminToken(t))
	require.Equal(t, http.StatusOK, rr.Code)
	var list leads.ListLeadsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list.Leads, 1)

	rr = env.do(http.MethodGet, "/admin/leads/"+list.Leads[0].ID, "", "Authorization", "Bearer "+adminToken(t))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterAdminRoutesRequireSecret(t *testing.T) {
	env := newTestRouter(t, func(c *Config) { c.AdminAuthSecret = "" })

	rr := env.do(http.MethodGet, "/admin/leads", "", "Authorization", "Bearer "+adminToken(t))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterRateLimitsWrites(t *testing.T) {
	env := newTestRouter(t, func(c *Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
	})

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/otp/send", `{"mobile":"9876543210"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/api/otp/send", `{"mobile":"9876543210"}`).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "").Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	env := newTestRouter(t, func(c *Config) { c.CORSAllowedOrigins = []string{"https://listings.example.com"} })

	rr := env.do(http.MethodOptions, "/chat/sessions", "",
		"Origin", "https://listings.example.com",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://listings.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
