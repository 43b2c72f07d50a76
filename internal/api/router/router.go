package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/listing-lead-assistant/internal/assistant"
	httpmiddleware "github.com/wolfman30/listing-lead-assistant/internal/http/middleware"
	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/internal/otp"
	"github.com/wolfman30/listing-lead-assistant/internal/webchat"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WebChat            *webchat.Handler
	OTPHandler         *otp.Handler
	AssistantHandler   *assistant.Handler
	QuizHandler        *assistant.QuizHandler
	LeadsHandler       *leads.Handler
	MetricsHandler     http.Handler
	Health             *HealthHandler
	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// RateLimitRPS and RateLimitBurst bound the public write endpoints per
	// client IP. Zero disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitRPS > 0 {
		limit = httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil, nil)
	}
	r.Get("/health", health.ServeHTTP)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WebChat != nil {
		r.Route("/chat", func(chat chi.Router) {
			// The socket is long lived, compressing or limiting it per frame
			// would break the upgrade.
			chat.Get("/ws", cfg.WebChat.HandleWebSocket)
			chat.Group(func(poll chi.Router) {
				poll.Use(middleware.Compress(5))
				poll.With(limit).Post("/sessions", cfg.WebChat.CreateSession)
				poll.Route("/sessions/{sessionID}", func(s chi.Router) {
					s.With(limit).Post("/answer", cfg.WebChat.Answer)
					s.With(limit).Post("/edit-number", cfg.WebChat.EditNumber)
					s.With(limit).Post("/resend-otp", cfg.WebChat.ResendOTP)
					s.With(limit).Post("/restart", cfg.WebChat.Restart)
					s.With(limit).Post("/chat", cfg.WebChat.Chat)
					s.Get("/cities", cfg.WebChat.Cities)
					s.Get("/events", cfg.WebChat.Events)
				})
			})
		})
	}

	r.Group(func(api chi.Router) {
		api.Use(limit)
		if cfg.OTPHandler != nil {
			api.Post("/api/otp/send", cfg.OTPHandler.Send)
			api.Post("/api/otp/verify", cfg.OTPHandler.Verify)
		}
		if cfg.AssistantHandler != nil {
			api.Post("/api/chat", cfg.AssistantHandler.Chat)
		}
		if cfg.QuizHandler != nil {
			api.Post("/api/quiz/game", cfg.QuizHandler.Game)
			api.Post("/api/quiz/submit", cfg.QuizHandler.Submit)
		}
		if cfg.LeadsHandler != nil {
			api.Post("/submit", cfg.LeadsHandler.CreateListing)
		}
	})

	if cfg.LeadsHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/leads", cfg.LeadsHandler.ListLeads)
			admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
		})
	}

	return r
}
