package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/veritas/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	endpointSuffix = "/v1/embeddings"
	pingText       = "Connection test..."
	// errorBodyLimit bounds how much of a provider error body ends up in messages.
	errorBodyLimit = 200
	backoffUnit    = time.Second
)

// Config configures the HTTP embedding client.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
	// BatchSize is clamped to MaxBatchSize.
	BatchSize          int
	MinRequestInterval time.Duration
	MaxAttempts        int
	RetryMinWait       time.Duration
	RetryMaxWait       time.Duration
}

// Client talks to an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	url         string
	model       string
	batchSize   int
	maxAttempts int
	minWait     time.Duration
	maxWait     time.Duration

	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu         sync.Mutex
	dimensions int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger for the client.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = utils.LoggerOrNop(l)
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is kept as-is.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient returns a client for the configured endpoint. The URL gets
// /v1/embeddings appended when it does not already end with it, and each
// request is given twice the configured timeout.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	endpoint := NormalizeURL(cfg.URL)
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid embeddings url %q", cfg.URL)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 100 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	limit := rate.Inf
	if cfg.MinRequestInterval > 0 {
		limit = rate.Every(cfg.MinRequestInterval)
	}

	c := &Client{
		url:         endpoint,
		model:       cfg.Model,
		batchSize:   EffectiveBatchSize(cfg.BatchSize),
		maxAttempts: attempts,
		minWait:     cfg.RetryMinWait,
		maxWait:     cfg.RetryMaxWait,
		http:        &http.Client{Timeout: 2 * timeout},
		limiter:     rate.NewLimiter(limit, 1),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeURL appends /v1/embeddings to raw unless it already ends with it.
func NormalizeURL(raw string) string {
	if strings.HasSuffix(raw, endpointSuffix) {
		return raw
	}
	return strings.TrimRight(raw, "/") + endpointSuffix
}

// URL returns the resolved endpoint.
func (c *Client) URL() string { return c.url }

// BatchSize returns the number of texts sent per request.
func (c *Client) BatchSize() int { return c.batchSize }

// Dimensions returns the vector size seen in the last successful response, or 0.
func (c *Client) Dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimensions
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Ping verifies the provider answers with a usable embedding.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.Embed(ctx, pingText); err != nil {
		return fmt.Errorf("embedding provider at %s unavailable: %w", c.url, err)
	}
	return nil
}

// EmbedBatch sends texts in a single request. Transport failures are retried
// with exponential backoff; every other failure is returned immediately.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		vecs, err := c.send(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		var e *Error
		if !errors.As(err, &e) || !e.Retryable() || attempt == c.maxAttempts {
			break
		}
		wait := c.backoff(attempt)
		c.logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := sleepContext(ctx, wait); err != nil {
			return nil, &Error{Kind: KindUnexpected, Err: err}
		}
	}
	return nil, lastErr
}

// backoff returns 2^attempt seconds clamped to [minWait, maxWait].
func (c *Client) backoff(attempt int) time.Duration {
	d := backoffUnit << uint(attempt)
	if c.maxWait > 0 && d > c.maxWait {
		d = c.maxWait
	}
	if d < c.minWait {
		d = c.minWait
	}
	return d
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data *[]struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type providerError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) send(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindUnexpected, Err: err}
	}

	body, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model, EncodingFormat: "float"})
	if err != nil {
		return nil, &Error{Kind: KindUnexpected, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnexpected, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("embedding request", zap.Int("texts", len(texts)), zap.String("url", c.url))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if err := statusError(resp.StatusCode, payload, c.url); err != nil {
		return nil, err
	}
	return c.decode(payload, len(texts))
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindUnexpected, Err: ctx.Err()}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Message: "connection timeout, check that the embedding provider is running", Err: err, retryable: true}
	}
	return &Error{Kind: KindUnexpected, Err: err, retryable: true}
}

func statusError(status int, payload []byte, endpoint string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return &Error{Kind: KindEndpointNotFound, StatusCode: status, Message: "embedding endpoint not found at " + endpoint}
	case status >= 500:
		return &Error{Kind: KindServerError, StatusCode: status, Message: utils.Prefix(string(payload), errorBodyLimit)}
	case status >= 400:
		msg := utils.Prefix(string(payload), errorBodyLimit)
		var pe providerError
		if json.Unmarshal(payload, &pe) == nil && pe.Error.Message != "" {
			msg = pe.Error.Message
		}
		return &Error{Kind: KindBadRequest, StatusCode: status, Message: msg}
	default:
		return &Error{Kind: KindUnexpected, StatusCode: status, Message: utils.Prefix(string(payload), errorBodyLimit)}
	}
}

func (c *Client) decode(payload []byte, want int) ([][]float32, error) {
	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Message: "invalid JSON: " + utils.Prefix(string(payload), errorBodyLimit), Err: err}
	}
	if out.Data == nil {
		return nil, &Error{Kind: KindMalformedResponse, Message: "response has no data field"}
	}
	data := *out.Data
	if len(data) != want {
		return nil, &Error{Kind: KindMalformedResponse, Message: fmt.Sprintf("got %d embeddings for %d inputs", len(data), want)}
	}
	vecs := make([][]float32, len(data))
	dim := 0
	for i, item := range data {
		if len(item.Embedding) == 0 {
			return nil, &Error{Kind: KindMalformedResponse, Message: fmt.Sprintf("embedding %d is empty", i)}
		}
		if dim == 0 {
			dim = len(item.Embedding)
		} else if len(item.Embedding) != dim {
			return nil, &Error{Kind: KindMalformedResponse, Message: fmt.Sprintf("embedding %d has %d dimensions, want %d", i, len(item.Embedding), dim)}
		}
		vecs[i] = item.Embedding
	}
	c.mu.Lock()
	c.dimensions = dim
	c.mu.Unlock()
	return vecs, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
