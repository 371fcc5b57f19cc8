// Package geocode resolves free-text delivery addresses with the Google
// Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

var ErrNoResults = errors.New("geocode: no results")

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("geocode: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type response struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	region      string
	language    string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSpace(u) }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("geocode: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("geocode: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
		region:      "br",
		language:    "pt-BR",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey reads the key once it succeeds; failures are retried on the
// next call.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	raw, err := c.getter.GetParameter(ctx, c.paramPrefix+"/google-maps-token")
	if err != nil {
		return "", fmt.Errorf("geocode: fetch token from paramstore: %w", err)
	}
	var tp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("geocode: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("geocode: API token is empty")
	}
	c.apiKey = tp.Token
	return c.apiKey, nil
}

// Geocode resolves query to the best match.
func (c *Client) Geocode(ctx context.Context, query string) (*domain.AddressData, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("geocode: query must not be empty")
	}
	key, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("address", query)
	params.Set("key", key)
	params.Set("region", c.region)
	params.Set("language", c.language)
	endpoint := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: create request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: c.baseURL, Body: string(buf)}
	}

	var payload response
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}
	switch payload.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResults
	default:
		return nil, fmt.Errorf("geocode: status %s: %s", payload.Status, payload.ErrorMessage)
	}
	if len(payload.Results) == 0 {
		return nil, ErrNoResults
	}

	best := payload.Results[0]
	addr := &domain.AddressData{
		FormattedAddress: best.FormattedAddress,
		Components:       map[string]string{},
	}
	for _, comp := range best.AddressComponents {
		for _, t := range comp.Types {
			k, short := componentKey(t)
			if k == "" || addr.Components[k] != "" {
				continue
			}
			if short {
				addr.Components[k] = comp.ShortName
			} else {
				addr.Components[k] = comp.LongName
			}
		}
	}
	return addr, nil
}

// componentKey maps a Google component type to the stored key, and whether
// the short name is kept.
func componentKey(googleType string) (string, bool) {
	switch googleType {
	case "route":
		return domain.ComponentStreet, false
	case "street_number":
		return domain.ComponentNumber, false
	case "sublocality", "sublocality_level_1":
		return domain.ComponentDistrict, false
	case "administrative_area_level_2", "locality":
		return domain.ComponentCity, false
	case "postal_code":
		return domain.ComponentPostalCode, false
	case "administrative_area_level_1":
		return domain.ComponentState, true
	case "country":
		return domain.ComponentCountryShort, true
	}
	return "", false
}
