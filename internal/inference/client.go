// Package inference talks to a local Ollama server to generate note titles,
// tags and summaries.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/starford/trevanbox/internal/apperr"
)

const (
	defaultTimeout        = 30 * time.Second
	statusTimeout         = 5 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// Config captures the runtime settings for the Ollama endpoint.
type Config struct {
	BaseURL      string
	Model        string
	Timeout      time.Duration
	Retry        int
	SystemPrompt string
}

// Client issues blocking generation requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	sleeper        func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for degraded calls.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = base
		c.retryMaxDelay = max
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         slog.Default(),
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
		sleeper:        sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ollama: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Generate sends prompt to /api/generate and returns the trimmed response.
// Connection failures and 5xx/429 replies are retried up to the configured
// retry count; timeouts are not.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		System: c.cfg.SystemPrompt,
		Stream: false,
	}
	attempts := max(c.cfg.Retry, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := c.generateOnce(ctx, payload)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == attempts || !retryable(ctx, err) {
			break
		}
		delay := c.backoff(attempt)
		c.logger.Debug("ollama: retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		if err := c.sleeper(ctx, delay); err != nil {
			return "", fmt.Errorf("%w: %w", apperr.ErrInference, err)
		}
	}
	return "", fmt.Errorf("%w: %w", apperr.ErrInference, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, payload generateRequest) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "api", "generate")
	if err != nil {
		return "", fmt.Errorf("ollama: build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ollama: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("ollama: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("ollama: api error: %s", decoded.Error)
	}
	return strings.TrimSpace(decoded.Response), nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.retryMaxDelay {
			return c.retryMaxDelay
		}
	}
	return min(delay, c.retryMaxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusReport describes the inference service as seen from here.
type StatusReport struct {
	Reachable      bool     `json:"reachable"`
	Model          string   `json:"model"`
	ModelInstalled bool     `json:"model_installed"`
	Models         []string `json:"models,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Status queries /api/tags with a short timeout.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	report := StatusReport{Model: c.cfg.Model}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "api", "tags")
	if err != nil {
		return report, fmt.Errorf("ollama status: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return report, fmt.Errorf("ollama status: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return report, fmt.Errorf("%w: %w", apperr.ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return report, fmt.Errorf("%w: %w", apperr.ErrInference, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	report.Reachable = true

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		// Reachable but the listing is unreadable; treat the model as unknown.
		return report, nil
	}
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		report.Models = append(report.Models, name)
	}
	report.ModelInstalled = slices.Contains(report.Models, c.cfg.Model) ||
		(!strings.Contains(c.cfg.Model, ":") && slices.Contains(report.Models, c.cfg.Model+":latest"))
	return report, nil
}
