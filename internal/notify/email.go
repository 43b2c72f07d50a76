package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// EmailSender defines the interface for sending emails.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*sendGridResponse, error)
}

type sendGridResponse struct {
	StatusCode int
	Body       string
}

type sdkClient struct{ c *sendgrid.Client }

func (s sdkClient) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*sendGridResponse, error) {
	resp, err := s.c.SendWithContext(ctx, email)
	if err != nil {
		return nil, err
	}
	return &sendGridResponse{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    sendGridClient
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender creates a new SendGrid email sender. It returns nil when
// no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = "Listing Assistant"
	}
	return &SendGridSender{
		client:    sdkClient{c: sendgrid.NewSendClient(cfg.APIKey)},
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logging.OrDefault(logger),
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}

	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// StubEmailSender is a no-op sender for testing or when email is disabled.
type StubEmailSender struct {
	logger *logging.Logger
	Sent   []EmailMessage
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	return &StubEmailSender{logger: logging.OrDefault(logger)}
}

// Send records the email without sending it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	s.Sent = append(s.Sent, msg)
	return nil
}
