// Package mapbox provides a client for the Mapbox Isochrone API.
package mapbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/internal/provider/resilience"
)

const (
	// ProviderName identifies this isochrone provider.
	ProviderName = "mapbox"

	// DefaultBaseURL is the Mapbox API base URL.
	DefaultBaseURL = "https://api.mapbox.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	maxBodySize = 8 << 20
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Mapbox client.
type ClientConfig struct {
	// AccessToken is used when a query carries no token of its own.
	AccessToken string

	// BaseURL is the API base URL (optional, defaults to the Mapbox API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Mapbox Isochrone API client.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  HTTPDoer
	logger      zerolog.Logger
}

// NewClient creates a new Mapbox client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Isochrones requests the contours for q and returns them in request order.
func (c *Client) Isochrones(ctx context.Context, q isochrone.Query) (*isochrone.Result, error) {
	if q.AccessToken == "" {
		q.AccessToken = c.accessToken
	}

	reqURL, err := BuildURL(c.baseURL, q)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().
		Str("profile", string(q.Profile)).
		Str("contour_type", string(q.ContourType)).
		Float64("origin_lat", q.Origin.Lat).
		Float64("origin_lon", q.Origin.Lon).
		Ints("contours", q.APIValues()).
		Str("url", RedactURL(reqURL)).
		Msg("requesting isochrones from Mapbox")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		code := "REQUEST_FAILED"
		message := "failed to reach isochrone provider"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			code = "CIRCUIT_OPEN"
			message = "isochrone provider is temporarily disabled after repeated failures"
		}
		return nil, &isochrone.Error{
			Provider: ProviderName,
			Code:     code,
			Message:  message + ": " + transportMessage(err),
			Err:      isochrone.ErrUpstream,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &isochrone.Error{
			Provider:   ProviderName,
			Code:       "READ_FAILED",
			Message:    "reading response body: " + err.Error(),
			StatusCode: resp.StatusCode,
			Err:        isochrone.ErrUpstream,
		}
	}

	contours, err := ParseResponse(resp.StatusCode, body)
	if err != nil {
		return nil, err
	}

	contours, err = alignContours(q, contours)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("contour_count", len(contours)).
		Msg("received isochrones from Mapbox")

	return &isochrone.Result{
		Origin:      q.Origin,
		Profile:     q.Profile,
		ContourType: q.ContourType,
		Units:       q.Units,
		Contours:    contours,
		Provider:    ProviderName,
		FetchedAt:   time.Now(),
	}, nil
}

// transportMessage describes a failed HTTP call without the request's
// access token.
func transportMessage(err error) string {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err.Error()
	}
	msg := urlErr.Op
	if redacted := RedactURL(urlErr.URL); redacted != "" {
		msg += " " + redacted
	}
	return msg + ": " + urlErr.Err.Error()
}

// alignContours orders upstream contours to match the query and converts
// their values back to query units. The API does not document its feature
// order, so contours are matched by value rather than by position.
func alignContours(q isochrone.Query, contours []isochrone.Contour) ([]isochrone.Contour, error) {
	want := q.APIValues()
	if len(contours) != len(want) {
		return nil, &isochrone.Error{
			Provider: ProviderName,
			Code:     "CONTOUR_COUNT",
			Message:  fmt.Sprintf("requested %d contours, received %d", len(want), len(contours)),
			Err:      isochrone.ErrMalformedResponse,
		}
	}

	aligned := make([]isochrone.Contour, len(contours))
	copy(aligned, contours)
	sort.SliceStable(aligned, func(i, j int) bool {
		return aligned[i].Value < aligned[j].Value
	})

	for i := range aligned {
		got := int(math.Round(aligned[i].Value))
		if got != want[i] {
			return nil, &isochrone.Error{
				Provider: ProviderName,
				Code:     "CONTOUR_MISMATCH",
				Message:  fmt.Sprintf("received contour %d, expected %d", got, want[i]),
				Err:      isochrone.ErrMalformedResponse,
			}
		}

		aligned[i].Value = q.ContourValues[i]
		if q.ContourType == isochrone.ContourDistance {
			aligned[i].Meters = want[i]
		}
		if aligned[i].Color == "" && len(q.Colors) == len(aligned) {
			aligned[i].Color = isochrone.NormalizeColor(q.Colors[i])
		}
	}

	return aligned, nil
}
