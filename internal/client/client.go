package client

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

	"github.com/google/uuid"

	"github.com/kjstillabower/weather-console/internal/models"
	"github.com/kjstillabower/weather-console/internal/observability"
	"github.com/kjstillabower/weather-console/internal/traffic"
	"github.com/kjstillabower/weather-console/internal/validation"
)

// Endpoint labels used in metrics and error messages.
const (
	EndpointWeather = "weather"
	EndpointHistory = "history"
	EndpointCount   = "count"
)

// HistorySort orders history entries most recent first.
const HistorySort = "-requestedAt"

const maxErrorBody = 4 << 10

// BackendClient is the console's view of the weather backend.
type BackendClient interface {
	GetWeather(ctx context.Context, coords validation.Coordinates) (models.WeatherPayload, error)
	ListHistory(ctx context.Context, limit, skip int) ([]models.HistoryEntry, error)
	CountHistory(ctx context.Context) (int, error)
}

// TokenSource supplies the bearer credential. It is consulted on every call.
type TokenSource interface {
	Token(ctx context.Context) string
}

// TokenFunc adapts a plain function to TokenSource.
type TokenFunc func(ctx context.Context) string

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) string { return f(ctx) }

var ErrInvalidBaseURL = errors.New("invalid backend URL")

// APIError is a non-2xx backend answer. Message is the body's "message" field, if any.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
}

// MessageFrom returns the backend-supplied message carried by err, or fallback.
func MessageFrom(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}

var _ BackendClient = (*HTTPClient)(nil)

// HTTPClient talks to the backend over HTTP. It never retries.
type HTTPClient struct {
	baseURL *url.URL
	tokens  TokenSource
	timeout time.Duration
	client  *http.Client
}

// NewHTTPClient builds a client for baseURL. A zero timeout leaves only the transport defaults.
func NewHTTPClient(baseURL string, tokens TokenSource, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidBaseURL)
	}
	if tokens == nil {
		tokens = TokenFunc(func(context.Context) string { return "" })
	}
	return &HTTPClient{
		baseURL: u,
		tokens:  tokens,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// GetWeather issues GET /weather?lat=&lon=.
func (c *HTTPClient) GetWeather(ctx context.Context, coords validation.Coordinates) (models.WeatherPayload, error) {
	params := url.Values{}
	params.Set("lat", formatCoordinate(coords.Lat))
	params.Set("lon", formatCoordinate(coords.Lon))

	var payload models.WeatherPayload
	if err := c.get(ctx, EndpointWeather, "/weather", params, &payload); err != nil {
		return models.WeatherPayload{}, err
	}
	return payload, nil
}

// ListHistory issues GET /history?limit=&skip=&sort=-requestedAt. limit and skip are
// passed through unchecked; the backend owns their bounds.
func (c *HTTPClient) ListHistory(ctx context.Context, limit, skip int) ([]models.HistoryEntry, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("skip", strconv.Itoa(skip))
	params.Set("sort", HistorySort)

	var entries []models.HistoryEntry
	if err := c.get(ctx, EndpointHistory, "/history", params, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

// CountHistory issues GET /history?count=true.
func (c *HTTPClient) CountHistory(ctx context.Context) (int, error) {
	params := url.Values{}
	params.Set("count", "true")

	var count models.HistoryCount
	if err := c.get(ctx, EndpointCount, "/history", params, &count); err != nil {
		return 0, err
	}
	return count.Total, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint, path string, params url.Values, out interface{}) (err error) {
	start := time.Now()
	defer func() { traffic.RecordBackendOutcome(endpoint, err == nil) }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.buildRequest(ctx, path, params)
	if err != nil {
		observability.RecordBackendCall(endpoint, "error", time.Since(start))
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordBackendCall(endpoint, "error", time.Since(start))
		observability.RecordBackendError(endpoint, string(CategorizeError(err)))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s request timeout: %w", endpoint, err)
		}
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	observability.RecordBackendCall(endpoint, statusLabel(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(endpoint, resp)
		observability.RecordBackendError(endpoint, string(CategorizeError(apiErr)))
		return apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		observability.RecordBackendError(endpoint, string(ErrorCategoryParsing))
		return fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return nil
}

func (c *HTTPClient) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Absent credentials are sent as an empty bearer value; the backend decides.
	req.Header.Set("Authorization", "Bearer "+c.tokens.Token(ctx))
	req.Header.Set("Accept", "application/json")

	corrID := extractCorrelationID(ctx)
	if corrID == "" {
		corrID = uuid.New().String()
	}
	req.Header.Set("X-Correlation-ID", corrID)
	return req, nil
}

func decodeAPIError(endpoint string, resp *http.Response) *APIError {
	apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return "unauthorized"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
