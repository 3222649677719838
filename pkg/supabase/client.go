package supabase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"
	errs "topicsync/pkg/errors"
	"topicsync/pkg/logger"
	"topicsync/pkg/ratelimit"
	"topicsync/pkg/retry"
	"topicsync/pkg/target"
)

// Options configures a Client
type Options struct {
	URL               string
	APIKey            string
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerMinute int
	Logger            logger.Logger
	// Backoff overrides the per-error-type retry delays
	Backoff retry.BackoffStrategy
}

// Client writes column values through a Supabase project's REST API
type Client struct {
	http    *resty.Client
	baseURL string
	limiter ratelimit.Limiter
	retry   *retry.Config
	logger  logger.Logger
}

// postgrestError is the JSON error body PostgREST returns
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *postgrestError) String() string {
	if e == nil || e.Message == "" {
		return ""
	}
	parts := []string{e.Message}
	if e.Details != "" {
		parts = append(parts, "details: "+e.Details)
	}
	if e.Hint != "" {
		parts = append(parts, "hint: "+e.Hint)
	}
	if e.Code != "" {
		parts = append(parts, "code "+e.Code)
	}
	return strings.Join(parts, "; ")
}

// NewClient creates a new Supabase REST client
func NewClient(opts Options) (*Client, error) {
	baseURL, err := NormalizeURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retryCfg := retry.DefaultConfig(log)
	retryCfg.MaxAttempts = opts.MaxAttempts
	if opts.Backoff != nil {
		retryCfg.Backoff = opts.Backoff
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetLogger(restyLogger{log: log}).
		SetHeader("apikey", opts.APIKey).
		SetHeader("Accept", "application/json").
		SetAuthToken(opts.APIKey)

	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		limiter: ratelimit.NewPerMinute(opts.RequestsPerMinute),
		retry:   retryCfg,
		logger:  log.WithField("component", "supabase"),
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.http.Close()
}

// Update sets tgt's column to values on the row with the given id.
// A response with no rows means nothing matched and is a not_found error.
func (c *Client) Update(ctx context.Context, tgt target.Target, id string, values []string) error {
	if tgt.IsZero() {
		return errs.New(errs.ErrorTypeClient, 0, "no update target")
	}
	if values == nil {
		values = []string{}
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.updateOnce(ctx, tgt, id, values)
	})
}

func (c *Client) updateOnce(ctx context.Context, tgt target.Target, id string, values []string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	path := TablePath(string(tgt.Table()))
	body := map[string][]string{string(tgt.Column()): values}

	var rows []map[string]interface{}
	var pgErr postgrestError

	start := time.Now()
	got, err := c.http.NewRequest().
		WithContext(ctx).
		SetContentType("application/json").
		SetHeader("Prefer", PreferRepresentation).
		SetQueryParam("id", EqFilter(id)).
		SetBody(body).
		SetResult(&rows).
		SetError(&pgErr).
		Patch(path)
	duration := time.Since(start)

	if err != nil {
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"method":      http.MethodPatch,
			"url":         c.baseURL + path,
			"row_id":      id,
			"error":       err.Error(),
			"duration_ms": duration.Milliseconds(),
		})
		return errs.Network(err)
	}

	logger.LogRequest(c.logger, http.MethodPatch, c.baseURL+path, got.StatusCode(), duration)

	if !got.IsSuccess() {
		return statusError(http.MethodPatch, path, got.StatusCode(), got.Status(), &pgErr, got.String())
	}

	if len(rows) == 0 {
		return errs.New(errs.ErrorTypeNotFound, got.StatusCode(),
			"no row in %s with id %q was updated", tgt.Table(), id)
	}

	return nil
}

// Ping checks that the project answers and the key can read table.
func (c *Client) Ping(ctx context.Context, table target.Table) error {
	path := TablePath(string(table))

	var pgErr postgrestError
	got, err := c.http.NewRequest().
		WithContext(ctx).
		SetQueryParam("select", "id").
		SetQueryParam("limit", "1").
		SetError(&pgErr).
		Get(path)
	if err != nil {
		return errs.Network(err)
	}
	if !got.IsSuccess() {
		return statusError(http.MethodGet, path, got.StatusCode(), got.Status(), &pgErr, got.String())
	}

	c.logger.DebugWithFields("Ping succeeded", map[string]interface{}{"table": string(table)})
	return nil
}

func statusError(method, path string, code int, status string, pgErr *postgrestError, raw string) *errs.Error {
	detail := pgErr.String()
	if detail == "" {
		detail = strings.TrimSpace(raw)
		if len(detail) > 200 {
			detail = detail[:200] + "..."
		}
	}
	if detail == "" {
		return errs.FromStatus(code, fmt.Sprintf("%s %s: %s", method, path, status))
	}
	return errs.FromStatus(code, fmt.Sprintf("%s %s: %s: %s", method, path, status, detail))
}

// restyLogger routes resty's internal messages through our logger
type restyLogger struct {
	log logger.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
