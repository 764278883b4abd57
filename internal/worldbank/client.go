// Package worldbank is a thin client for the World Bank indicators API (v2, JSON).
package worldbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.worldbank.org/v2"
	defaultUserAgent = "govstats/0.1"
	defaultTimeout   = 20 * time.Second
	defaultPerPage   = 100
	maxErrorBody     = 4096
)

// Indicator identifiers used by the service.
const (
	IndicatorPopulation = "SP.POP.TOTL"
	IndicatorGDPNominal = "NY.GDP.MKTP.CD"
	IndicatorDebtToGDP  = "GC.DOD.TOTL.GD.ZS"
)

// WorldCode is the reserved pseudo-country holding world aggregates.
const WorldCode = "WLD"

// ErrAPIMessage is returned when the API answers 200 with an error document.
var ErrAPIMessage = errors.New("worldbank: api returned an error message")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("worldbank: api error %d: %s", e.StatusCode, e.Body)
}

// Observation is one (country, indicator, year) data point. Value is nil when the
// upstream has no data for that year.
type Observation struct {
	IndicatorID string
	CountryID   string
	Date        string
	Value       *float64
}

// Year parses Date as a calendar year, returning 0 when it is not one.
func (o Observation) Year() int {
	year, err := strconv.Atoi(strings.TrimSpace(o.Date))
	if err != nil {
		return 0
	}
	return year
}

// Client fetches indicator series from the World Bank API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// NewClient constructs a client with sane defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit caps outgoing requests. perSec <= 0 disables limiting.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

type rawObservation struct {
	Indicator struct {
		ID string `json:"id"`
	} `json:"indicator"`
	Country struct {
		ID string `json:"id"`
	} `json:"country"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}

type apiMessage struct {
	Message []struct {
		ID    string `json:"id"`
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"message"`
}

// Observations returns the series of indicator for country between fromYear and toYear
// (inclusive), in the order the API returns them (most recent first).
func (c *Client) Observations(ctx context.Context, country, indicator string, fromYear, toYear int) ([]Observation, error) {
	country = strings.TrimSpace(country)
	indicator = strings.TrimSpace(indicator)
	if country == "" || indicator == "" {
		return nil, errors.New("worldbank: country and indicator are required")
	}
	if fromYear > toYear {
		fromYear, toYear = toYear, fromYear
	}

	endpoint := c.endpoint(country, indicator, fromYear, toYear)
	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	observations, err := decodeObservations(body)
	if err != nil {
		return nil, fmt.Errorf("worldbank: %s/%s: %w", country, indicator, err)
	}
	return observations, nil
}

func (c *Client) endpoint(country, indicator string, fromYear, toYear int) string {
	path := fmt.Sprintf("%s/country/%s/indicator/%s",
		c.baseURL, url.PathEscape(strings.ToLower(country)), url.PathEscape(indicator))

	query := url.Values{}
	query.Set("format", "json")
	query.Set("date", fmt.Sprintf("%d:%d", fromYear, toYear))
	query.Set("per_page", strconv.Itoa(defaultPerPage))
	return path + "?" + query.Encode()
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("worldbank: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("worldbank: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worldbank: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("worldbank: read body: %w", err)
	}
	return body, nil
}

// decodeObservations parses the two-element [meta, data] envelope. A null or missing
// data element means the API has no rows for the query.
func decodeObservations(body []byte) ([]Observation, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope) == 0 {
		return nil, errors.New("decode envelope: empty response")
	}

	var msg apiMessage
	if err := json.Unmarshal(envelope[0], &msg); err == nil && len(msg.Message) > 0 {
		parts := make([]string, 0, len(msg.Message))
		for _, m := range msg.Message {
			parts = append(parts, strings.TrimSpace(m.ID+" "+m.Value))
		}
		return nil, fmt.Errorf("%w: %s", ErrAPIMessage, strings.Join(parts, "; "))
	}

	if len(envelope) < 2 {
		return nil, nil
	}

	var raws []rawObservation
	if err := json.Unmarshal(envelope[1], &raws); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}

	out := make([]Observation, 0, len(raws))
	for _, raw := range raws {
		countryID := raw.Country.ID
		if countryID == "" {
			countryID = raw.CountryISO3
		}
		out = append(out, Observation{
			IndicatorID: raw.Indicator.ID,
			CountryID:   countryID,
			Date:        raw.Date,
			Value:       raw.Value,
		})
	}
	return out, nil
}
