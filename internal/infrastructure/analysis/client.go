package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sentimentiq/backend/internal/domain"
)

// Client handles communication with the SentimentIQ analysis backend
type Client struct {
	httpClient  *http.Client
	baseURL     string
	sessions    *Sessions
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second. Zero or less disables the cap.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.rateLimiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.Named("analysis") }
}

// NewClient creates a backend client. sessions supplies the anonymous session id.
func NewClient(baseURL string, sessions *Sessions, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     baseURL,
		sessions:    sessions,
		rateLimiter: rate.NewLimiter(rate.Limit(2), 5),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type analyzeRequest struct {
	Product       domain.ProductMetadata `json:"product"`
	UserSessionID string                 `json:"userSessionId"`
}

type analyzeResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest executes a JSON POST with proper headers
func (c *Client) doRequest(ctx context.Context, path string, body any, token string) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SentimentIQ/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	return resp, nil
}

// Analyze asks the backend for the sentiment of product. The request is not
// retried: every call may count against the user's quota.
func (c *Client) Analyze(ctx context.Context, product domain.ProductMetadata, token string) (*domain.SentimentResult, error) {
	if !product.Valid() {
		return nil, domain.ErrInvalidRequest
	}

	sessionID, err := c.sessions.ID(ctx)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	c.logger.Debug("analyzing product", zap.String("name", product.Name))
	resp, err := c.doRequest(ctx, "/api/analyze", analyzeRequest{Product: product, UserSessionID: sessionID}, token)
	if err != nil {
		c.logger.Warn("analyze request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrBackendFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		c.logger.Warn("analyze rejected", zap.Int("status", resp.StatusCode), zap.String("error", errResp.Error))
		return nil, domain.NewBackendError(resp.StatusCode, errResp.Error)
	}

	var envelope analyzeResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}

	result, err := MapToSentimentResult(envelope.Data)
	if err != nil {
		c.logger.Error("failed to parse API response", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Checkout starts a subscription checkout and returns the URL to open.
func (c *Client) Checkout(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrInvalidRequest
	}

	resp, err := c.doRequest(ctx, "/api/subscription/checkout", nil, token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrBackendFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		msg := errResp.Message
		if msg == "" {
			msg = fmt.Sprintf("Checkout error: %d", resp.StatusCode)
		}
		return "", &domain.BackendError{Status: resp.StatusCode, Message: msg, Err: domain.ErrBackendFailure}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	return out.URL, nil
}
