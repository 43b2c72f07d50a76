package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/listing-lead-assistant/internal/listing"
	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/internal/validation"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

var gatewayTracer = otel.Tracer("listing.internal.leads.gateway")

// Outcome classifies a submission.
type Outcome string

const (
	Success        Outcome = "Success"
	DuplicatePhone Outcome = "DuplicatePhone"
	Forbidden      Outcome = "Forbidden"
	InvalidCity    Outcome = "InvalidCity"
	InvalidPhone   Outcome = "InvalidPhone"
	AuthError      Outcome = "AuthError"
	ServerError    Outcome = "ServerError"
	NetworkError   Outcome = "NetworkError"
)

const (
	msgInvalidCity  = "Error: Invalid city selected. Please choose a valid city."
	msgInvalidPhone = "Error: Please enter a valid Indian phone number (10 digits, starting with 6-9)."
	msgNetwork      = "Error: Unable to connect to the server. Please try again later."
	msgDuplicate    = "Phone number already registered. Please use a different number."
	msgForbidden    = "Please try a different phone number or contact support."
	msgAuth         = "Error: Invalid API key. Please contact support."
)

// Result is the terminal state of a submission. Message is shown to the user.
type Result struct {
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message"`
	StatusCode int     `json:"statusCode,omitempty"`
	Lead       *Lead   `json:"lead,omitempty"`
}

// OK reports whether the lead was accepted.
func (r Result) OK() bool { return r.Outcome == Success }

// Err returns a *SubmissionError for non-success results.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &SubmissionError{Outcome: r.Outcome, StatusCode: r.StatusCode, Message: r.Message}
}

// CityIndex is the directory view needed to check a city id.
type CityIndex interface {
	HasID(id string) bool
}

// Notifier announces accepted leads, e.g. by email.
type Notifier interface {
	NotifyLead(ctx context.Context, lead *Lead) error
}

// Publisher emits a lead.submitted event.
type Publisher interface {
	PublishLeadSubmitted(ctx context.Context, lead *Lead) error
}

// GatewayConfig holds the static intake fields.
type GatewayConfig struct {
	CountryCode     string
	Source          string
	CountryID       int
	RequirementType int
}

// Gateway validates, sends and classifies lead submissions.
type Gateway struct {
	intake    Intake
	cfg       GatewayConfig
	repo      Repository
	notifier  Notifier
	publisher Publisher
	metrics   *metrics.FunnelMetrics
	logger    *logging.Logger
}

// GatewayOption configures optional side effects.
type GatewayOption func(*Gateway)

func WithRepository(r Repository) GatewayOption { return func(g *Gateway) { g.repo = r } }
func WithNotifier(n Notifier) GatewayOption     { return func(g *Gateway) { g.notifier = n } }
func WithPublisher(p Publisher) GatewayOption   { return func(g *Gateway) { g.publisher = p } }
func WithMetrics(m *metrics.FunnelMetrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a submission gateway.
func NewGateway(intake Intake, cfg GatewayConfig, logger *logging.Logger, opts ...GatewayOption) *Gateway {
	if cfg.CountryCode == "" {
		cfg.CountryCode = "91"
	}
	if cfg.Source == "" {
		cfg.Source = "WhatsAppChat"
	}
	if cfg.CountryID == 0 {
		cfg.CountryID = 1
	}
	g := &Gateway{intake: intake, cfg: cfg, logger: logging.OrDefault(logger)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Payload builds the intake body for form.
func (g *Gateway) Payload(form listing.LeadForm) IntakePayload {
	return IntakePayload{
		CustomerName:        form.FullName,
		CustomerEmail:       "",
		CustomerPhoneNumber: form.IntakePhone(g.cfg.CountryCode),
		Source:              g.cfg.Source,
		CountryID:           g.cfg.CountryID,
		RequirementType:     g.cfg.RequirementType,
		ListingType:         form.ListingType.Code(),
		CityID:              form.CityID,
		UserType:            form.UpperUserType(),
	}
}

// Submit sends form to the intake endpoint. City and phone are checked
// locally first; either failure returns without a network call.
func (g *Gateway) Submit(ctx context.Context, form listing.LeadForm, dir CityIndex) Result {
	ctx, span := gatewayTracer.Start(ctx, "leads.submit", trace.WithAttributes(
		attribute.String("lead.city_id", form.CityID),
		attribute.String("lead.listing_type", string(form.ListingType)),
	))
	defer span.End()

	res := g.submit(ctx, form, dir)
	g.metrics.ObserveSubmission(string(res.Outcome))
	span.SetAttributes(attribute.String("lead.outcome", string(res.Outcome)), attribute.Int("http.status_code", res.StatusCode))
	if !res.OK() {
		span.SetStatus(codes.Error, string(res.Outcome))
		g.logger.Warn("lead submission failed", "outcome", res.Outcome, "status", res.StatusCode)
		return res
	}
	res.Lead = g.record(ctx, form)
	return res
}

func (g *Gateway) submit(ctx context.Context, form listing.LeadForm, dir CityIndex) Result {
	if form.CityID == "" || dir == nil || !dir.HasID(form.CityID) {
		return Result{Outcome: InvalidCity, Message: msgInvalidCity}
	}
	payload := g.Payload(form)
	if !validation.ValidIntakePhone(payload.CustomerPhoneNumber) {
		return Result{Outcome: InvalidPhone, Message: msgInvalidPhone}
	}

	resp, err := g.intake.Register(ctx, payload)
	if err != nil {
		g.logger.Error("intake request failed", "error", err)
		return Result{Outcome: NetworkError, Message: msgNetwork}
	}
	res := Classify(resp)
	if res.OK() {
		res.Message = SuccessMessage(form)
	}
	return res
}

// record runs the post-success side effects. Their failures are logged only.
func (g *Gateway) record(ctx context.Context, form listing.LeadForm) *Lead {
	req := RequestFromForm(form, g.cfg.Source)
	var lead *Lead
	if g.repo != nil {
		stored, err := g.repo.Create(ctx, req)
		if err != nil {
			g.logger.Error("failed to store lead", "error", err)
		} else {
			lead = stored
		}
	}
	if lead == nil {
		lead = req.toLead("", timeNow())
	}
	if g.notifier != nil {
		if err := g.notifier.NotifyLead(ctx, lead); err != nil {
			g.logger.Error("failed to notify lead", "error", err, "lead_id", lead.ID)
		}
	}
	if g.publisher != nil {
		if err := g.publisher.PublishLeadSubmitted(ctx, lead); err != nil {
			g.logger.Error("failed to publish lead event", "error", err, "lead_id", lead.ID)
		}
	}
	g.logger.Info("lead submitted", "lead_id", lead.ID, "city_id", lead.CityID, "listing_type", lead.ListingType)
	return lead
}

// Classify maps an intake answer onto an outcome.
func Classify(resp *IntakeResponse) Result {
	var body struct {
		Status  *int   `json:"status"`
		Message string `json:"message"`
	}
	isJSON := json.Unmarshal(resp.Body, &body) == nil
	text := string(resp.Body)

	switch resp.StatusCode {
	case 200:
		if isJSON && body.Status != nil && *body.Status == 1 {
			return Result{Outcome: Success, StatusCode: 200}
		}
	case 403:
		res := Result{Outcome: Forbidden, StatusCode: 403, Message: msgForbidden}
		switch {
		case isJSON && body.Message != "":
			res.Message = body.Message
			if strings.Contains(strings.ToLower(body.Message), "duplicate") {
				res.Outcome = DuplicatePhone
			}
		case strings.Contains(strings.ToLower(text), "duplicate"):
			res.Outcome = DuplicatePhone
			res.Message = msgDuplicate
		}
		return res
	case 401:
		return Result{Outcome: AuthError, StatusCode: 401, Message: msgAuth}
	}

	detail := "Please try again."
	switch {
	case isJSON && body.Message != "":
		detail = body.Message
	case !isJSON && strings.TrimSpace(text) != "":
		detail = strings.TrimSpace(text)
	}
	return Result{
		Outcome:    ServerError,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Error: Failed to save data (Status: %d). %s", resp.StatusCode, detail),
	}
}

// SuccessMessage thanks the user once the lead is accepted.
func SuccessMessage(form listing.LeadForm) string {
	return fmt.Sprintf("Thank you, %s! Your phone number has been verified. Our agent will contact you soon to list your property in %s. 🙌", form.FullName, form.CityName)
}
