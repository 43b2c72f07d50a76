package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/listing-lead-assistant/internal/assistant"
	"github.com/wolfman30/listing-lead-assistant/internal/cities"
	appconfig "github.com/wolfman30/listing-lead-assistant/internal/config"
	"github.com/wolfman30/listing-lead-assistant/internal/conversation"
	"github.com/wolfman30/listing-lead-assistant/internal/events"
	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/internal/notify"
	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/internal/otp"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// DB is the subset of a pgx pool the lead stores use.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// BuildCityDirectory wires the lookup client and, when Redis is available,
// the shared city cache.
func BuildCityDirectory(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger, m *metrics.FunnelMetrics) *cities.Directory {
	client := cities.NewLookupClient(cities.LookupConfig{
		URL:        cfg.CityAPIURL,
		APIKey:     cfg.CityAPIKey,
		FromSource: cfg.CityFromSource,
		CountryID:  cfg.CityCountryID,
		UserType:   cfg.CityUserType,
		Timeout:    cfg.HTTPTimeout,
	}, logger, m)

	var opts []cities.Option
	if redisClient != nil {
		scope := fmt.Sprintf("%d:%s", cfg.CityCountryID, strings.ToLower(cfg.CityUserType))
		opts = append(opts, cities.WithCache(cities.NewRedisCache(redisClient, scope, cfg.CityCacheTTL)))
	}
	return cities.NewDirectory(client, logger, opts...)
}

// OTPStack is the provider client plus a per-session manager factory.
type OTPStack struct {
	Client      *otp.Client
	NewVerifier func() conversation.Verifier
}

// BuildOTP wires the OTP provider. Bypass is refused in production.
func BuildOTP(cfg *appconfig.Config, logger *logging.Logger, m *metrics.FunnelMetrics) (*OTPStack, error) {
	if cfg.OTPBypass && cfg.IsProduction() {
		return nil, fmt.Errorf("bootstrap: otp bypass is not allowed in production")
	}
	client := otp.NewClient(otp.ClientConfig{
		BaseURL:     cfg.OTPBaseURL,
		CountryCode: cfg.OTPCountryCode,
		Timeout:     cfg.HTTPTimeout,
	}, logger, m)
	settings := otp.Settings{
		MaxAttempts: cfg.OTPMaxAttempts,
		Validity:    cfg.OTPValidity,
		Cooldown:    cfg.OTPCooldown,
		Bypass:      cfg.OTPBypass,
	}
	if cfg.OTPBypass {
		logger.Warn("otp bypass enabled; phone numbers are not verified")
	}
	return &OTPStack{
		Client: client,
		NewVerifier: func() conversation.Verifier {
			return otp.NewManager(client, settings, otp.WithLogger(logger), otp.WithMetrics(m))
		},
	}, nil
}

// LeadStack is everything downstream of an accepted submission.
type LeadStack struct {
	Gateway    *leads.Gateway
	Repository leads.Repository
	// Deliverer is nil unless events go through the outbox.
	Deliverer *events.Deliverer
}

// BuildLeadStack wires the intake gateway with its side effects: the lead
// record (Postgres when db is set), the sales desk email, and the
// lead_submitted event. With a database the event is written to the outbox
// and delivered to SQS (or the log); without one it goes straight to SQS.
func BuildLeadStack(ctx context.Context, cfg *appconfig.Config, db DB, logger *logging.Logger, m *metrics.FunnelMetrics) (*LeadStack, error) {
	logger = logging.OrDefault(logger)
	intake := leads.NewIntakeClient(leads.IntakeConfig{
		URL:     cfg.IntakeURL,
		APIKey:  cfg.IntakeAPIKey,
		Timeout: cfg.HTTPTimeout,
	}, logger, m)

	stack := &LeadStack{}
	opts := []leads.GatewayOption{leads.WithMetrics(m)}

	if db != nil {
		stack.Repository = leads.NewPostgresRepository(db)
	} else {
		logger.Warn("no database configured; leads are kept in memory")
		stack.Repository = leads.NewInMemoryRepository()
	}
	opts = append(opts, leads.WithRepository(stack.Repository))

	if notifier := buildLeadNotifier(cfg, logger); notifier != nil {
		opts = append(opts, leads.WithNotifier(notifier))
	}

	var sqsPublisher *events.SQSPublisher
	if strings.TrimSpace(cfg.LeadEventsQueueURL) != "" {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		sqsPublisher = events.NewSQSPublisher(BuildSQSClient(awsCfg, cfg), cfg.LeadEventsQueueURL)
	}

	switch {
	case db != nil:
		store := events.NewOutboxStore(db)
		opts = append(opts, leads.WithPublisher(store))
		var handler events.DeliveryHandler = events.NewLogHandler(logger)
		if sqsPublisher != nil {
			handler = sqsPublisher
		}
		stack.Deliverer = events.NewDeliverer(store, handler, logger)
	case sqsPublisher != nil:
		opts = append(opts, leads.WithPublisher(sqsPublisher))
	}

	stack.Gateway = leads.NewGateway(intake, leads.GatewayConfig{
		CountryCode:     cfg.OTPCountryCode,
		Source:          cfg.IntakeSource,
		CountryID:       cfg.IntakeCountryID,
		RequirementType: cfg.IntakeRequirementType,
	}, logger, opts...)
	return stack, nil
}

func buildLeadNotifier(cfg *appconfig.Config, logger *logging.Logger) leads.Notifier {
	if strings.TrimSpace(cfg.LeadNotifyEmail) == "" {
		return nil
	}
	var sender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	}
	return notify.NewLeadNotifier(sender, cfg.LeadNotifyEmail, cfg.Brand, logger)
}

// AssistantStack is the follow-up chat service, the membership quiz and the
// model client to close at shutdown.
type AssistantStack struct {
	Service *assistant.Service
	Quiz    *assistant.Quiz
	Close   func() error
}

// BuildAssistant wires Gemini when a key is configured and the stub reply
// otherwise. History lives in Redis when available.
func BuildAssistant(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger, m *metrics.FunnelMetrics) (*AssistantStack, error) {
	logger = logging.OrDefault(logger)
	stack := &AssistantStack{Close: func() error { return nil }}

	var llm assistant.LLMClient = assistant.StubClient{}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		client, err := assistant.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		llm = client
		stack.Close = client.Close
		logger.Info("assistant using gemini", "model", cfg.GeminiModel)
	} else {
		logger.Warn("no GEMINI_API_KEY; assistant uses stub replies")
	}

	var history assistant.HistoryStore = assistant.NewMemoryHistory(cfg.ChatHistoryLength)
	var quizzes assistant.QuizStore = assistant.NewMemoryQuizStore()
	if redisClient != nil {
		history = assistant.NewRedisHistory(redisClient, cfg.ChatHistoryLength)
		quizzes = assistant.NewRedisQuizStore(redisClient)
	}

	stack.Service = assistant.NewService(llm, logger,
		assistant.WithHistory(history),
		assistant.WithBrand(cfg.Brand),
		assistant.WithMetrics(m),
	)
	stack.Quiz = assistant.NewQuiz(llm, logger, assistant.WithQuizStore(quizzes), assistant.WithQuizMetrics(m))
	return stack, nil
}

// BuildRegistry assembles the per-session components.
func BuildRegistry(cfg *appconfig.Config, dir *cities.Directory, otpStack *OTPStack, gateway *leads.Gateway, chat conversation.Assistant, logger *logging.Logger, m *metrics.FunnelMetrics) *conversation.Registry {
	comps := conversation.Components{
		Directory:   dir,
		NewVerifier: otpStack.NewVerifier,
		Gateway:     gateway,
		Assistant:   chat,
		Settings: conversation.Settings{
			Brand:         cfg.Brand,
			ReminderDelay: cfg.IdleReminderDelay,
		},
		Logger:  logger,
		Metrics: m,
	}
	return conversation.NewRegistry(comps.NewSession, cfg.SessionTTL, logger, m)
}
