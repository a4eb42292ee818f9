package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/memora/internal/auth"
	"github.com/dl-alexandre/memora/internal/errors"
	"github.com/dl-alexandre/memora/internal/logging"
	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
	"github.com/google/uuid"
)

const maxErrorBody = 4096

// Client talks to the metadata service and the content channel, with retry
// logic and request shaping
type Client struct {
	baseURL    string
	metadata   *http.Client
	content    *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// ClientOptions configures NewClient
type ClientOptions struct {
	// BaseURL includes the version prefix, e.g. http://localhost:8000/v1
	BaseURL     string
	Credentials *types.Credentials
	// Transport is shared by the metadata and content clients
	Transport  http.RoundTripper
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     logging.Logger
}

// NewClient creates a new metadata service client
func NewClient(opts ClientOptions) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid server URL: %q", opts.BaseURL)).Build())
	}
	if opts.Credentials == nil || opts.Credentials.AccessToken == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, "a bearer token is required").Build())
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		metadata: &http.Client{
			Transport: auth.BearerTransport(transport, opts.Credentials),
			Timeout:   opts.Timeout,
		},
		// Upload targets are presigned; they must not see the bearer token.
		content: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}, nil
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(ctx context.Context, path string, requestType types.RequestType) *types.RequestContext {
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return &types.RequestContext{
		Path:        path,
		RequestType: requestType,
		TraceID:     traceID,
	}
}

// StatusError is a non-2xx response from the metadata service or content channel
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
	RetryAfter string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// decodeError marks a 2xx response whose body could not be understood
type decodeError struct {
	statusCode int
	err        error
}

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// localError marks a failure on this machine, such as an unreadable file
type localError struct {
	err error
}

func (e *localError) Error() string { return e.err.Error() }
func (e *localError) Unwrap() error { return e.err }

// ExecuteWithRetry executes a remote call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("Remote operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("path", reqCtx.Path),
	)

	start := time.Now()

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying remote operation",
				logging.F("attempt", attempt),
				logging.F("maxRetries", client.maxRetries),
				logging.F("path", reqCtx.Path),
			)
		}

		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("Remote operation completed",
				logging.F("requestType", reqCtx.RequestType),
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !isRetryable(ctx, lastErr, reqCtx.RequestType != types.RequestTypeCreate) {
			return result, classifyError(lastErr, reqCtx, logger)
		}

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("Remote operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, classifyError(ctx.Err(), reqCtx, logger)
			case <-time.After(delay):
			}
		}
	}

	logger.Error("Remote operation failed after max retries",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, classifyError(lastErr, reqCtx, logger)
}

// isRetryable reports whether another attempt could succeed. Transport
// errors are only retried for idempotent calls: a create that timed out may
// have been stored, and repeating it leaves a second record.
func isRetryable(ctx context.Context, err error, idempotent bool) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 429, 502, 503, 504:
			return true
		}
		return false
	}
	var decErr *decodeError
	var locErr *localError
	if stderrors.As(err, &decErr) || stderrors.As(err, &locErr) {
		return false
	}
	// Anything else came from the transport
	return idempotent && !stderrors.Is(err, context.Canceled)
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	var statusErr *StatusError
	if stderrors.As(err, &statusErr) && statusErr.RetryAfter != "" {
		if seconds, err := strconv.Atoi(statusErr.RetryAfter); err == nil {
			delay := time.Duration(seconds) * time.Second
			if delay > maxDelay {
				return maxDelay
			}
			return delay
		}
	}

	// Exponential backoff: base * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add jitter (+/-25% of delay)
	jitterRange := delay / 4
	if jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay = delay + jitter
	}

	if delay < 0 {
		delay = baseDelay
	}

	return delay
}

// classifyError converts call failures to CLI errors
func classifyError(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return errors.ClassifyHTTPError(statusErr.StatusCode, statusErr.Error(), err, reqCtx, logger)
	}
	var decErr *decodeError
	if stderrors.As(err, &decErr) {
		return errors.ClassifyDecodeError(decErr.statusCode, err, reqCtx, logger)
	}
	var locErr *localError
	if stderrors.As(err, &locErr) {
		logger.Error("Local read failed",
			logging.F("path", reqCtx.Path),
			logging.F("error", err),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error()).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("requestType", string(reqCtx.RequestType)).
			WithContext("path", reqCtx.Path).
			Build(), err)
	}
	return errors.ClassifyHTTPError(0, "", err, reqCtx, logger)
}

// CreateRecord registers a new entry with the metadata service
func (c *Client) CreateRecord(ctx context.Context, reqCtx *types.RequestContext, req types.CreateRecordRequest) (*types.SyncRecord, error) {
	return ExecuteWithRetry(ctx, c, reqCtx, func() (*types.SyncRecord, error) {
		return c.doRecord(ctx, http.MethodPost, c.baseURL+"/files", req)
	})
}

// UpdateRecord replaces the mutable fields of an existing record
func (c *Client) UpdateRecord(ctx context.Context, reqCtx *types.RequestContext, id string, req types.UpdateRecordRequest) (*types.SyncRecord, error) {
	target := c.baseURL + "/files/" + url.PathEscape(id)
	return ExecuteWithRetry(ctx, c, reqCtx, func() (*types.SyncRecord, error) {
		return c.doRecord(ctx, http.MethodPut, target, req)
	})
}

func (c *Client) doRecord(ctx context.Context, method, target string, body interface{}) (*types.SyncRecord, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &localError{err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return nil, &localError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.metadata.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var record types.SyncRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, &decodeError{statusCode: resp.StatusCode, err: err}
	}
	if record.ID == "" {
		return nil, &decodeError{statusCode: resp.StatusCode, err: stderrors.New("record has no id")}
	}
	return &record, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Method:     resp.Request.Method,
		URL:        redactURL(resp.Request.URL),
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: resp.Header.Get("Retry-After"),
	}
}

// redactURL drops the query string, which carries presigned credentials
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme + "://" + u.Host + u.Path
}
