package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"crawlfetch/internal/content"
	"crawlfetch/internal/shared"
)

// Request defaults.
const (
	DefaultMethod       = http.MethodGet
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 10
)

// ResponseType is the type a caller can force on the response.
type ResponseType = content.Type

const (
	TypeBuffer = content.TypeBuffer
	TypeText   = content.TypeText
	TypeJSON   = content.TypeJSON
	TypeStream = content.TypeStream
)

// Request describes one logical fetch.
type Request struct {
	URL     string  `json:"url" validate:"required"`
	Method  string  `json:"method,omitempty"`
	Headers Headers `json:"headers,omitempty"`
	// Cookies are raw "name=value" strings sent in order.
	Cookies []string `json:"cookies,omitempty"`
	// Body is a string, []byte, io.Reader or a structured value.
	Body    any           `json:"body,omitempty"`
	Timeout time.Duration `json:"-"`
	// Retries is the number of additional attempts after the first one.
	Retries int `json:"retries,omitempty" validate:"gte=0"`
	// MaxRedirects of 0 selects DefaultMaxRedirects; a negative value
	// disables redirect following.
	MaxRedirects    int          `json:"maxRedirects,omitempty"`
	ResponseType    ResponseType `json:"responseType,omitempty" validate:"omitempty,oneof=buffer text json stream"`
	ResponseCharset string       `json:"responseCharset,omitempty"`
	Proxy           string       `json:"proxy,omitempty" validate:"omitempty,url"`
}

// Headers maps lower-cased header names to their ordered values.
type Headers map[string][]string

// Get returns the first value of key.
func (h Headers) Get(key string) string {
	if v := h[strings.ToLower(key)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Set replaces the values of key.
func (h Headers) Set(key, value string) {
	h[strings.ToLower(key)] = []string{value}
}

// Has reports whether key is present.
func (h Headers) Has(key string) bool {
	_, ok := h[strings.ToLower(key)]
	return ok
}

// Clone returns a deep copy of h.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// UnmarshalJSON accepts both "name": "value" and "name": ["v1", "v2"].
func (h *Headers) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Headers, len(raw))
	for k, v := range raw {
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			out[k] = []string{one}
			continue
		}
		var many []string
		if err := json.Unmarshal(v, &many); err != nil {
			return fmt.Errorf("header %q: expected string or list of strings", k)
		}
		out[k] = many
	}
	*h = out
	return nil
}

var validate = validator.New()

// normalize applies defaults and serializes query/form bodies. The caller's
// request is left untouched.
func (c *Client) normalize(in *Request) (*Request, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil request", shared.ErrValidation)
	}
	r := *in

	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = DefaultMethod
	}
	if r.Timeout <= 0 {
		r.Timeout = c.timeout
	}
	if r.Retries == 0 {
		r.Retries = c.retries
	}
	if r.MaxRedirects == 0 {
		r.MaxRedirects = DefaultMaxRedirects
	}
	if err := validate.Struct(&r); err != nil {
		return nil, shared.MarkKind(err, shared.KindValidation)
	}

	h := make(Headers, len(in.Headers)+len(c.headers)+1)
	for k, v := range in.Headers {
		key := strings.ToLower(strings.TrimSpace(k))
		h[key] = append(h[key], v...)
	}
	for k, v := range c.headers {
		if !h.Has(k) {
			h[k] = append([]string(nil), v...)
		}
	}
	if len(r.Cookies) > 0 {
		cookies := strings.Join(r.Cookies, "; ")
		if prev := h.Get("cookie"); prev != "" {
			cookies = prev + "; " + cookies
		}
		h.Set("cookie", cookies)
	}
	r.Headers = h
	r.Cookies = append([]string(nil), in.Cookies...)

	u, err := url.Parse(ExpandMagic(r.URL, c.now(), c.rand))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", shared.ErrValidation, u.Scheme)
	}
	if _, _, err := parseProxy(r.Proxy); err != nil {
		return nil, err
	}

	if err := normalizeBody(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func normalizeBody(r *Request) error {
	if r.Body == nil {
		return nil
	}
	if rd, ok := r.Body.(io.Reader); ok {
		b, err := io.ReadAll(rd)
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
		if c, ok := rd.(io.Closer); ok {
			_ = c.Close()
		}
		r.Body = b
	}

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if s, ok := r.Body.(string); ok {
			r.URL = appendQuery(r.URL, strings.TrimLeft(s, "?&"))
			r.Body = nil
			return nil
		}
		if pairs, ok := structuredPairs(r.Body); ok {
			r.URL = appendQuery(r.URL, encodePairs(pairs, true))
			r.Body = nil
		}
		return nil
	}

	if strings.Contains(strings.ToLower(r.Headers.Get("content-type")), "x-www-form-urlencoded") {
		if pairs, ok := structuredPairs(r.Body); ok {
			r.Body = encodePairs(pairs, false)
		}
	}
	return nil
}

type pair struct{ key, value string }

// structuredPairs flattens an object body into ordered key/value pairs.
func structuredPairs(body any) ([]pair, bool) {
	var m map[string][]string
	switch v := body.(type) {
	case string, []byte:
		return nil, false
	case url.Values:
		m = v
	case map[string][]string:
		m = v
	case map[string]string:
		m = make(map[string][]string, len(v))
		for k, s := range v {
			m[k] = []string{s}
		}
	case map[string]any:
		m = flattenAny(v)
	default:
		kind := reflect.Indirect(reflect.ValueOf(body)).Kind()
		if kind != reflect.Struct && kind != reflect.Map {
			return nil, false
		}
		b, err := json.Marshal(body)
		if err != nil {
			return nil, false
		}
		var obj map[string]any
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil, false
		}
		m = flattenAny(obj)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]pair, 0, len(keys))
	for _, k := range keys {
		for _, v := range m[k] {
			pairs = append(pairs, pair{k, v})
		}
	}
	return pairs, true
}

func flattenAny(obj map[string]any) map[string][]string {
	m := make(map[string][]string, len(obj))
	for k, v := range obj {
		switch x := v.(type) {
		case []any:
			for _, e := range x {
				m[k] = append(m[k], scalarString(e))
			}
		case []string:
			m[k] = append(m[k], x...)
		default:
			m[k] = []string{scalarString(x)}
		}
	}
	return m
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// encodePairs joins pairs as k=v&...; keys are escaped only when escapeKeys is set.
func encodePairs(pairs []pair, escapeKeys bool) string {
	var buf bytes.Buffer
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte('&')
		}
		if escapeKeys {
			buf.WriteString(url.QueryEscape(p.key))
		} else {
			buf.WriteString(p.key)
		}
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(p.value))
	}
	return buf.String()
}

func appendQuery(u, q string) string {
	if q == "" {
		return u
	}
	base, frag, hasFrag := strings.Cut(u, "#")
	switch {
	case !strings.Contains(base, "?"):
		base += "?" + q
	case strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&"):
		base += q
	default:
		base += "&" + q
	}
	if hasFrag {
		return base + "#" + frag
	}
	return base
}
