package httpclient

import (
	"context"
	"errors"
	"log/slog"
	randv2 "math/rand/v2"
	"net/url"
	"strings"
	"time"

	"crawlfetch/internal/content"
	"crawlfetch/pkg/retry"
)

// DefaultUserAgent is sent unless the request or client overrides it.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultHeaders are the browser-like headers merged into every request.
func DefaultHeaders() Headers {
	return Headers{
		"user-agent":      {DefaultUserAgent},
		"accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8"},
		"accept-language": {"en-US,en;q=0.9"},
		"accept-encoding": {"gzip, deflate, zstd"},
	}
}

// Client fetches URLs with retries, decoding and per-proxy connection pools.
// It is safe for concurrent use.
type Client struct {
	transport Transport
	proxies   *ProxyCache
	log       *slog.Logger
	headers   Headers
	timeout   time.Duration
	retries   int
	backoff   retry.Config
	now       func() time.Time
	rand      func() float64
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout used when a request has none.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) {
		if t > 0 {
			c.timeout = t
		}
	}
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries sets the retry count used when a request has none.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBackoff overrides the retry delay schedule.
func WithBackoff(cfg retry.Config) Option {
	return func(c *Client) { c.backoff = cfg }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[normalizeKey(k)] = []string{v}
		}
	}
}

// WithoutHeaders removes default headers.
func WithoutHeaders(keys ...string) Option {
	return func(c *Client) {
		for _, k := range keys {
			delete(c.headers, normalizeKey(k))
		}
	}
}

// WithTransport replaces the network transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithClock sets the time source for magic variables and stats.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRandom sets the source of {rand}.
func WithRandom(f func() float64) Option {
	return func(c *Client) {
		if f != nil {
			c.rand = f
		}
	}
}

// New creates configured Client.
func New(opts ...Option) *Client {
	c := &Client{
		proxies: NewProxyCache(nil),
		log:     slog.Default(),
		headers: DefaultHeaders(),
		timeout: DefaultTimeout,
		backoff: retry.DefaultConfig(),
		now:     time.Now,
		rand:    randv2.Float64,
	}
	for _, o := range opts {
		o(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(c.proxies)
	}
	return c
}

// Proxies returns the client's transport cache.
func (c *Client) Proxies() *ProxyCache { return c.proxies }

// Close releases idle connections.
func (c *Client) Close() {
	c.proxies.CloseIdleConnections()
}

// attemptState belongs to a single Fetch call.
type attemptState struct {
	retries int
	calls   int
	hungUp  bool
	last    *RawResponse
}

// Fetch performs req, retrying per the request's retry budget, and resolves
// the final response body. Every error is a *FetchError.
func (c *Client) Fetch(ctx context.Context, req *Request) (*Response, error) {
	norm, err := c.normalize(req)
	if err != nil {
		return nil, &FetchError{Err: err, Request: req}
	}
	backoff, err := retry.NewBackoff(c.backoff)
	if err != nil {
		return nil, &FetchError{Err: err, Request: norm}
	}

	var st attemptState
	start := c.now()
	for {
		cur := c.prepare(norm)
		raw, err := c.attempt(ctx, cur)
		st.calls++

		var decision retry.Decision
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) && te.Response != nil {
				st.last = te.Response
			}
			decision = retry.ErrorDecision(err, st.retries, cur.Retries, st.hungUp)
		} else {
			st.last = raw
			decision = retry.StatusDecision(raw.Status, IsOK(raw.Status), st.retries, cur.Retries)
		}

		u := redactURL(cur.URL)
		if !decision.Retrying() {
			stats := Stats{Elapsed: c.now().Sub(start), Calls: st.calls}
			if err != nil {
				fe := c.fail(cur, st.last, err, decision)
				fe.Stats = stats
				c.log.Warn("fetch failed", slog.String("method", cur.Method), slog.String("url", u), slog.Int("calls", st.calls), slog.String("decision", decision.String()), slog.Any("error", fe.Err))
				return nil, fe
			}
			resp, err := c.resolve(cur, raw)
			if err != nil {
				err.Stats = stats
			} else {
				resp.Stats = stats
			}
			c.log.Info("fetch", slog.String("method", cur.Method), slog.String("url", u), slog.Int("status", raw.Status), slog.Int("calls", st.calls), slog.Duration("dur", stats.Elapsed))
			if err != nil {
				return nil, err
			}
			return resp, nil
		}

		if decision == retry.RetryHangUp {
			st.hungUp = true
		} else {
			st.retries++
		}
		raw.close()

		wait := backoff.Next()
		attrs := []any{slog.String("method", cur.Method), slog.String("url", u), slog.Int("attempt", st.calls), slog.Duration("wait", wait), slog.String("decision", decision.String())}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		} else {
			attrs = append(attrs, slog.Int("status", raw.Status))
		}
		c.log.Warn("fetch retry", attrs...)

		if werr := backoff.Wait(ctx, wait); werr != nil {
			stats := Stats{Elapsed: c.now().Sub(start), Calls: st.calls}
			return nil, &FetchError{Err: werr, Request: cur, Response: st.last.buffered(), Stats: stats}
		}
	}
}

// prepare expands magic variables for one attempt.
func (c *Client) prepare(norm *Request) *Request {
	cur := *norm
	now := c.now()
	cur.URL = ExpandMagic(norm.URL, now, c.rand)
	cur.Headers = norm.Headers.Clone()
	if ref := cur.Headers.Get("referer"); ref != "" {
		cur.Headers.Set("referer", ExpandMagic(ref, now, c.rand))
	}
	return &cur
}

func (c *Client) attempt(ctx context.Context, r *Request) (*RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.transport.RoundTrip(ctx, r)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &TransportError{Err: errors.New("transport returned no response")}
	}
	if r.ResponseType != TypeStream {
		if err := raw.readAll(); err != nil {
			return nil, &TransportError{Err: err, Response: raw}
		}
	}
	return raw, nil
}

func (c *Client) fail(r *Request, last *RawResponse, err error, d retry.Decision) *FetchError {
	var cause error
	switch {
	case d == retry.StopHangUp:
		cause = emptyResponse(r.URL)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		cause = unwrapURLError(err)
	default:
		cause = stripTransport(err)
	}
	return &FetchError{Err: cause, Request: r, Response: last.buffered()}
}

func (c *Client) resolve(r *Request, raw *RawResponse) (*Response, *FetchError) {
	resp := raw.base()
	if r.ResponseType == TypeStream {
		resp.Type = TypeStream
		resp.Data = raw.stream()
		return resp, nil
	}

	res, err := content.Decode(raw.Body, content.Options{
		Type:       r.ResponseType,
		Charset:    r.ResponseCharset,
		Resolution: content.Classify(raw.Header),
		CJK:        content.IsCJK(r.Headers.Get("accept-language")),
	})
	if err != nil {
		return nil, &FetchError{Err: err, Request: r, Response: raw.buffered()}
	}
	resp.Type = res.Type
	resp.Data = res.Data
	return resp, nil
}

func redactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	return u.Redacted()
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
