package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// IntakePayload is the fixed-shape body of the remote lead intake call.
type IntakePayload struct {
	CustomerName        string `json:"customerName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerPhoneNumber string `json:"customerPhoneNumber"`
	Source              string `json:"source"`
	CountryID           int    `json:"countryId"`
	RequirementType     int    `json:"requirementType"`
	ListingType         string `json:"listingType"`
	CityID              string `json:"cityId"`
	UserType            string `json:"userType"`
}

// IntakeResponse is the raw answer from the intake endpoint.
type IntakeResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Intake sends a lead to the remote registration endpoint.
type Intake interface {
	Register(ctx context.Context, payload IntakePayload) (*IntakeResponse, error)
}

// IntakeConfig configures the intake client.
type IntakeConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// IntakeClient posts leads to the owner registration endpoint.
type IntakeClient struct {
	httpClient *http.Client
	url        string
	apiKey     string
	logger     *logging.Logger
	metrics    *metrics.FunnelMetrics
}

// NewIntakeClient constructs an intake client.
func NewIntakeClient(cfg IntakeConfig, logger *logging.Logger, m *metrics.FunnelMetrics) *IntakeClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &IntakeClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		logger:     logging.OrDefault(logger),
		metrics:    m,
	}
}

// Register posts payload. Any HTTP answer is returned for classification;
// only transport failures produce an error.
func (c *IntakeClient) Register(ctx context.Context, payload IntakePayload) (*IntakeResponse, error) {
	start := time.Now()
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("intake", "error", start)
		return nil, err
	}
	defer resp.Body.Close()
	c.metrics.ObserveUpstream("intake", strconv.Itoa(resp.StatusCode), start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("lead intake non-200", "status", resp.StatusCode, "body", msg)
	}
	return &IntakeResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
