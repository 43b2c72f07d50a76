package cities

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

const defaultTimeout = 10 * time.Second

// ErrMalformedResponse is returned when the lookup service answers with an
// unexpected status flag or shape.
var ErrMalformedResponse = errors.New("cities: malformed lookup response")

// LookupConfig configures the city lookup request body.
type LookupConfig struct {
	URL        string
	APIKey     string
	FromSource string
	CountryID  int
	UserType   string
	Timeout    time.Duration
}

// LookupClient fetches the master city list from the remote service.
type LookupClient struct {
	httpClient *http.Client
	cfg        LookupConfig
	logger     *logging.Logger
	metrics    *metrics.FunnelMetrics
}

// NewLookupClient constructs a city lookup client.
func NewLookupClient(cfg LookupConfig, logger *logging.Logger, m *metrics.FunnelMetrics) *LookupClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.FromSource == "" {
		cfg.FromSource = "whatsapp"
	}
	if cfg.CountryID == 0 {
		cfg.CountryID = 1
	}
	if cfg.UserType == "" {
		cfg.UserType = "CP"
	}
	return &LookupClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logging.OrDefault(logger),
		metrics:    m,
	}
}

type lookupRequest struct {
	FromSource string `json:"fromSource"`
	CountryID  int    `json:"countryId"`
	UserType   string `json:"userType"`
}

type lookupResponse struct {
	Status       *int         `json:"status"`
	MasterCities []masterCity `json:"mastercities"`
}

type masterCity struct {
	CityName string `json:"cityName"`
	CityID   flexID `json:"cityid"`
}

// flexID accepts numeric or string ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("cityid: %w", err)
	}
	*f = flexID(s)
	return nil
}

// FetchCities returns the unsorted city list.
func (c *LookupClient) FetchCities(ctx context.Context) ([]Entry, error) {
	start := time.Now()
	payload, err := json.Marshal(lookupRequest{
		FromSource: c.cfg.FromSource,
		CountryID:  c.cfg.CountryID,
		UserType:   c.cfg.UserType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api_key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("cities", "error", start)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveUpstream("cities", strconv.Itoa(resp.StatusCode), start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("city lookup non-2xx", "url", c.cfg.URL, "status", resp.StatusCode, "body", msg)
		return nil, fmt.Errorf("city lookup status %d", resp.StatusCode)
	}

	var decoded lookupResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if decoded.Status == nil || *decoded.Status != 1 || decoded.MasterCities == nil {
		return nil, ErrMalformedResponse
	}

	out := make([]Entry, 0, len(decoded.MasterCities))
	for _, mc := range decoded.MasterCities {
		name := strings.TrimSpace(mc.CityName)
		if name == "" {
			continue
		}
		out = append(out, Entry{Name: name, ID: string(mc.CityID)})
	}
	return out, nil
}
