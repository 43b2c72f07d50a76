package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultCountryCode = "91"

	// SentConfirmation is the provider message that marks a successful send.
	SentConfirmation  = "OTP sent Successfully on mobile"
	invalidOTPMessage = "Invalid OTP"
)

// ErrNotConfirmed is returned by Send when the provider answered without
// the confirmation message.
var ErrNotConfirmed = errors.New("otp: send not confirmed")

// VerifyStatus is the provider's verdict on a code.
type VerifyStatus int

const (
	VerifyUnexpected VerifyStatus = iota
	VerifyConfirmed
	VerifyInvalid
)

// VerifyResult is the parsed provider answer to a verify request.
type VerifyResult struct {
	Status     VerifyStatus
	UserID     string
	Message    string
	StatusCode int
}

// Provider is the remote OTP service.
type Provider interface {
	Send(ctx context.Context, mobile string) error
	Verify(ctx context.Context, mobile, code string) (VerifyResult, error)
}

// ClientConfig configures the OTP provider client.
type ClientConfig struct {
	BaseURL     string
	CountryCode string
	Timeout     time.Duration
}

// Client talks to the OTP provider's /send and /verify endpoints.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	countryCode string
	logger      *logging.Logger
	metrics     *metrics.FunnelMetrics
}

// NewClient constructs an OTP provider client.
func NewClient(cfg ClientConfig, logger *logging.Logger, m *metrics.FunnelMetrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = defaultCountryCode
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		countryCode: cfg.CountryCode,
		logger:      logging.OrDefault(logger),
		metrics:     m,
	}
}

type sendRequest struct {
	CountryCode string `json:"countryCode"`
	Mobile      string `json:"mobile"`
}

type verifyRequest struct {
	CountryCode string `json:"countryCode"`
	Mobile      string `json:"mobile"`
	OTP         string `json:"otp"`
}

type providerResponse struct {
	Message string `json:"message"`
	Data    *struct {
		UserExists bool `json:"userExists"`
		UserID     any  `json:"userId"`
	} `json:"data"`
}

// Send asks the provider to deliver a code to mobile.
func (c *Client) Send(ctx context.Context, mobile string) error {
	resp, err := c.Forward(ctx, "send", sendRequest{CountryCode: c.countryCode, Mobile: mobile})
	if err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	var decoded providerResponse
	_ = json.Unmarshal(resp.Body, &decoded)
	if resp.StatusCode != http.StatusOK || decoded.Message != SentConfirmation {
		c.logger.Warn("otp send not confirmed", "status", resp.StatusCode, "message", decoded.Message)
		return fmt.Errorf("%w: status %d", ErrNotConfirmed, resp.StatusCode)
	}
	return nil
}

// Verify checks code with the provider. Transport failures are returned as
// errors; every HTTP answer is classified into a VerifyResult.
func (c *Client) Verify(ctx context.Context, mobile, code string) (VerifyResult, error) {
	resp, err := c.Forward(ctx, "verify", verifyRequest{CountryCode: c.countryCode, Mobile: mobile, OTP: code})
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify otp: %w", err)
	}

	result := VerifyResult{StatusCode: resp.StatusCode}
	var decoded providerResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return result, nil
	}
	result.Message = decoded.Message

	switch {
	case resp.StatusCode == http.StatusOK && decoded.Data != nil && decoded.Data.UserExists:
		result.Status = VerifyConfirmed
		if decoded.Data.UserID != nil {
			result.UserID = fmt.Sprint(decoded.Data.UserID)
		}
	case resp.StatusCode == http.StatusBadRequest && decoded.Message == invalidOTPMessage:
		result.Status = VerifyInvalid
	}
	return result, nil
}

// ForwardedResponse is a raw provider answer.
type ForwardedResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forward posts body as JSON to <base>/<action> and returns the raw answer.
func (c *Client) Forward(ctx context.Context, action string, body any) (*ForwardedResponse, error) {
	start := time.Now()
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(action, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("otp_"+action, "error", start)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveUpstream("otp_"+action, strconv.Itoa(resp.StatusCode), start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("otp provider non-2xx", "action", action, "status", resp.StatusCode, "body", msg)
	}
	return &ForwardedResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
