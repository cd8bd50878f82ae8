package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Transport performs a single attempt of a normalized request.
//
// Implementations honour r.Timeout, r.MaxRedirects and r.Proxy, and return a
// *TransportError (or any other error) for failures below HTTP semantics.
// Unless r.ResponseType is stream the body is fully read into Body.
type Transport interface {
	RoundTrip(ctx context.Context, r *Request) (*RawResponse, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, r *Request) (*RawResponse, error)

func (f TransportFunc) RoundTrip(ctx context.Context, r *Request) (*RawResponse, error) {
	return f(ctx, r)
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	proxies *ProxyCache
}

// NewHTTPTransport returns a Transport drawing connection pools from proxies.
func NewHTTPTransport(proxies *ProxyCache) *HTTPTransport {
	if proxies == nil {
		proxies = NewProxyCache(nil)
	}
	return &HTTPTransport{proxies: proxies}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, r *Request) (*RawResponse, error) {
	tr, err := t.proxies.Get(r.Proxy)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Headers {
		if k == "host" && len(vs) > 0 {
			req.Host = vs[0]
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	hc := &http.Client{
		Transport:     tr,
		Timeout:       r.Timeout,
		CheckRedirect: redirectPolicy(r.MaxRedirects),
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	raw := &RawResponse{
		URL:        resp.Request.URL.String(),
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
	}
	rc, err := decompress(resp)
	if err != nil {
		resp.Body.Close()
		return nil, &TransportError{Err: err, Response: raw}
	}
	if r.ResponseType == TypeStream {
		raw.Stream = rc
		return raw, nil
	}
	defer rc.Close()
	if raw.Body, err = io.ReadAll(rc); err != nil {
		return nil, &TransportError{Err: err, Response: raw}
	}
	return raw, nil
}

func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if max < 0 {
			return http.ErrUseLastResponse
		}
		if len(via) > max {
			return fmt.Errorf("stopped after %d redirects: too many redirects", max)
		}
		return nil
	}
}

func statusText(resp *http.Response) string {
	s := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if s == "" {
		return http.StatusText(resp.StatusCode)
	}
	return s
}

// encodeBody serializes pass-through bodies. url.Values become a form and
// any other structured value becomes JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

type decodedBody struct {
	io.Reader
	closers []func() error
}

func (d *decodedBody) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// decompress wraps the body according to Content-Encoding. Unknown codings
// pass through untouched.
func decompress(resp *http.Response) (io.ReadCloser, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if enc == "" || enc == "identity" || resp.Request.Method == http.MethodHead {
		return resp.Body, nil
	}

	var (
		r   io.Reader
		cls = []func() error{}
	)
	switch enc {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return resp.Body, nil
			}
			return nil, err
		}
		r, cls = zr, append(cls, zr.Close)
	case "deflate":
		br := bufio.NewReader(resp.Body)
		head, _ := br.Peek(1)
		if len(head) == 1 && head[0]&0x0f == 0x08 {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, err
			}
			r, cls = zr, append(cls, zr.Close)
		} else {
			fr := flate.NewReader(br)
			r, cls = fr, append(cls, fr.Close)
		}
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		r, cls = zr, append(cls, func() error { zr.Close(); return nil })
	default:
		return resp.Body, nil
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	return &decodedBody{Reader: r, closers: append(cls, resp.Body.Close)}, nil
}
