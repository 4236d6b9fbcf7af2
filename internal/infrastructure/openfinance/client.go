package openfinance

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

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"horizon/internal/domain/account"
	"horizon/internal/domain/aggregation"
	"horizon/internal/domain/transaction"
)

const (
	DefaultBaseURL    = "https://www.pierre.finance/tools/api"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 2
	accountsPath      = "/get-accounts"
	transactionsPath  = "/get-transactions"
	maxErrorBody      = 4 << 10
)

var (
	providerMeter           = otel.Meter("horizon/provider")
	providerCallDuration, _ = providerMeter.Float64Histogram("provider.call.duration", metric.WithDescription("Provider call duration in seconds"), metric.WithUnit("s"))
)

var (
	// ErrUnauthorized is returned when the provider rejects the user's key (401).
	ErrUnauthorized  = errors.New("provider key unauthorized")
	ErrNoProviderKey = errors.New("user has no provider key")
)

// APIError is a non-200 provider response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("API request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// errorResponse is the provider's error body.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// listResponse is the provider's envelope for list endpoints. Items are kept
// loosely typed; the domain normalizers decide what is valid.
type listResponse struct {
	Success   bool             `json:"success"`
	Data      []map[string]any `json:"data"`
	Count     int              `json:"count"`
	Timestamp string           `json:"timestamp"`
}

// Config configures the provider client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RateLimit is the sustained request rate shared by every caller of the
	// client, in requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Option tweaks the underlying retrying HTTP client.
type Option func(*retryablehttp.Client)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(retries int) Option {
	return func(c *retryablehttp.Client) { c.RetryMax = retries }
}

// WithRetryWait bounds the backoff between attempts.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = minWait
		c.RetryWaitMax = maxWait
	}
}

// WithCheckRetry overrides the retry policy.
func WithCheckRetry(cr retryablehttp.CheckRetry) Option {
	return func(c *retryablehttp.Client) { c.CheckRetry = cr }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *retryablehttp.Client) { c.HTTPClient.Transport = rt }
}

// Client talks to the Open Finance aggregation API on behalf of linked users.
type Client struct {
	retry   *retryablehttp.Client
	baseURL string
	keys    KeyResolver
	logger  *zap.Logger
}

// Ensure Client implements aggregation.Provider
var _ aggregation.Provider = (*Client)(nil)

// NewClient creates a new provider client. keys resolves each user's API key.
func NewClient(cfg Config, keys KeyResolver, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.MaxRetries
	retry.HTTPClient.Timeout = cfg.Timeout
	retry.Logger = leveledLogger{logger.Named("retryablehttp").Sugar()}
	// Hand the last response back so status codes can be mapped.
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler
	for _, opt := range opts {
		opt(retry)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	// Retries go through the transport too, so every attempt spends budget.
	next := retry.HTTPClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	retry.HTTPClient.Transport = &limitedTransport{limiter: rate.NewLimiter(limit, burst), next: next}

	return &Client{
		retry:   retry,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		keys:    keys,
		logger:  logger,
	}
}

// limitedTransport waits on the shared limiter before each request.
type limitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return t.next.RoundTrip(req)
}

// ListAccounts fetches every account linked by the user.
func (c *Client) ListAccounts(ctx context.Context, userID string) ([]account.Raw, error) {
	items, err := c.list(ctx, "list_accounts", userID, c.baseURL+accountsPath)
	if err != nil {
		return nil, err
	}
	out := make([]account.Raw, len(items))
	for i, item := range items {
		out[i] = account.Raw(item)
	}
	return out, nil
}

// GetAccountTransactions fetches the transactions of one of the user's
// accounts.
func (c *Client) GetAccountTransactions(ctx context.Context, userID, accountID string) ([]transaction.Raw, error) {
	u := c.baseURL + transactionsPath + "?" + url.Values{"accountId": {accountID}}.Encode()
	items, err := c.list(ctx, "get_transactions", userID, u)
	if err != nil {
		return nil, err
	}
	out := make([]transaction.Raw, len(items))
	for i, item := range items {
		out[i] = transaction.Raw(item)
	}
	return out, nil
}

func (c *Client) list(ctx context.Context, operation, userID, u string) (items []map[string]any, err error) {
	start := time.Now()
	status := 0
	defer func() {
		providerCallDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", strconv.Itoa(status)),
		))
	}()

	if c.keys == nil {
		return nil, ErrNoProviderKey
	}
	apiKey, err := c.keys.ProviderKey(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider key: %w", err)
	}
	if apiKey == "" {
		return nil, ErrNoProviderKey
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.retry.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("provider rejected key", zap.String("user_id", userID), zap.String("operation", operation))
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil {
			apiErr.Code = errResp.Error
			apiErr.Message = errResp.Message
		}
		return nil, apiErr
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var envelope listResponse
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("API returned success=false")
	}
	if envelope.Data == nil {
		envelope.Data = []map[string]any{}
	}
	return envelope.Data, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
