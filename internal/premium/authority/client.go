// Package authority asks the identity authority whether a username belongs to
// a registered account.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"premiumblocker/internal/premium/metrics"
	"premiumblocker/pkg/platform/circuit"
	"premiumblocker/pkg/platform/sentinel"
)

const maxProfileBytes = 64 << 10

// Classification is the outcome of a registry lookup.
type Classification int

const (
	Indeterminate Classification = iota
	Registered
	NotRegistered
)

func (c Classification) String() string {
	switch c {
	case Registered:
		return "registered"
	case NotRegistered:
		return "not_registered"
	default:
		return "indeterminate"
	}
}

// Result is delivered once per lookup. Err is a *LookupError exactly when
// the classification is Indeterminate.
type Result struct {
	Classification Classification
	ID             uuid.UUID
	Err            error
	Duration       time.Duration
}

// Definite reports whether the authority gave a usable answer.
func (r Result) Definite() bool {
	return r.Classification != Indeterminate
}

// Premium reports a registered account. Indeterminate results are not premium.
func (r Result) Premium() bool {
	return r.Classification == Registered
}

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client performs profile-by-name lookups.
type Client struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBreaker short-circuits lookups while the authority is failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the transport; the lookup timeout still applies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New builds a client for baseURL, the profile-by-name endpoint without the
// trailing username. timeout bounds connecting and reading.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid authority url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("authority timeout must be positive")
	}
	dialer := &net.Dialer{Timeout: timeout}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "PremiumBlocker/1.0.0",
		timeout:   timeout,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("premiumblocker/authority"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start runs Lookup on its own goroutine and delivers the result on a
// buffered channel. The lookup ignores cancellation of ctx; only the client
// timeout bounds it.
func (c *Client) Start(ctx context.Context, username string) <-chan Result {
	out := make(chan Result, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		out <- c.Lookup(ctx, username)
	}()
	return out
}

// Lookup classifies username. It never returns an error: failures become an
// Indeterminate result carrying a *LookupError, logged once.
func (c *Client) Lookup(ctx context.Context, username string) Result {
	ctx, span := c.tracer.Start(ctx, "authority.lookup", trace.WithAttributes(
		attribute.String("premium.username", username),
	))
	defer span.End()

	if c.breaker != nil && !c.breaker.Allow() {
		err := newLookupError(ErrorProviderOutage, username, "circuit open", sentinel.ErrUnavailable)
		c.logger.WarnContext(ctx, "authority lookup skipped, circuit open",
			"username", username,
			"breaker", c.breaker.Name(),
			"category", ErrorProviderOutage,
		)
		span.SetAttributes(attribute.String("premium.classification", Indeterminate.String()))
		span.SetStatus(codes.Error, string(ErrorProviderOutage))
		c.metrics.IncrementLookup(Indeterminate.String())
		return Result{Classification: Indeterminate, Err: err}
	}

	start := time.Now()
	res := c.fetch(ctx, username)
	res.Duration = time.Since(start)

	c.recordBreaker(ctx, res)
	c.metrics.ObserveLookup(res.Classification.String(), res.Duration)
	span.SetAttributes(attribute.String("premium.classification", res.Classification.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(GetCategory(res.Err)))
		c.logger.WarnContext(ctx, "authority lookup failed",
			"username", username,
			"category", GetCategory(res.Err),
			"duration_ms", res.Duration.Milliseconds(),
			"error", res.Err,
		)
	} else {
		c.logger.DebugContext(ctx, "authority lookup",
			"username", username,
			"classification", res.Classification.String(),
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res
}

func (c *Client) fetch(ctx context.Context, username string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(username), nil)
	if err != nil {
		return indeterminate(newLookupError(ErrorInternal, username, "build request", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return indeterminate(classifyTransportError(username, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return indeterminate(classifyTransportError(username, err))
	}
	return parseProfileResponse(username, resp.StatusCode, body)
}

// parseProfileResponse maps an authority response onto a Result.
func parseProfileResponse(username string, status int, body []byte) Result {
	switch {
	case status == http.StatusOK:
		var p profile
		if err := json.Unmarshal(body, &p); err != nil {
			return indeterminate(newLookupError(ErrorBadData, username, "decode profile", err))
		}
		if p.ID == "" {
			return indeterminate(newLookupError(ErrorBadData, username, "profile has no id", nil))
		}
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return indeterminate(newLookupError(ErrorBadData, username, "profile id is not a uuid", err))
		}
		return Result{Classification: Registered, ID: id}
	case status == http.StatusNoContent, status == http.StatusNotFound:
		return Result{Classification: NotRegistered}
	case status == http.StatusTooManyRequests:
		return indeterminate(newLookupError(ErrorRateLimited, username, "rate limited", nil))
	case status >= 500:
		return indeterminate(newLookupError(ErrorProviderOutage, username, fmt.Sprintf("status %d", status), nil))
	default:
		return indeterminate(newLookupError(ErrorContractMismatch, username, fmt.Sprintf("unexpected status %d", status), nil))
	}
}

func classifyTransportError(username string, err error) *LookupError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newLookupError(ErrorTimeout, username, "request timed out", err)
	}
	return newLookupError(ErrorProviderOutage, username, "request failed", err)
}

func indeterminate(err *LookupError) Result {
	return Result{Classification: Indeterminate, Err: err}
}

// recordBreaker counts outages and timeouts against the breaker. Bad data and
// unexpected statuses mean the authority is up, so they count as successes.
func (c *Client) recordBreaker(ctx context.Context, res Result) {
	if c.breaker == nil {
		return
	}
	switch GetCategory(res.Err) {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited:
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.metrics.SetCircuitOpen(true)
			c.logger.WarnContext(ctx, "authority circuit opened, failing open without lookups", "breaker", c.breaker.Name())
		}
	default:
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.metrics.SetCircuitOpen(false)
			c.logger.InfoContext(ctx, "authority circuit closed", "breaker", c.breaker.Name())
		}
	}
}
