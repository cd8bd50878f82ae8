package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlfetch/internal/content"
	"crawlfetch/internal/crawl"
	"crawlfetch/internal/journal"
	"crawlfetch/internal/platform/httpclient"
	"crawlfetch/internal/platform/logger"
	"crawlfetch/internal/shared"
)

func init() { gin.SetMode(gin.TestMode) }

type fetchFunc func(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)

func (f fetchFunc) Fetch(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return f(ctx, req)
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	pingErr error
}

func (m *memJournal) Record(_ context.Context, e ...journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e...)
	return nil
}

func (m *memJournal) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]journal.Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memJournal) Get(_ context.Context, id string) (journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return journal.Entry{}, shared.ErrNotFound
}

func (m *memJournal) Ping(context.Context) error { return m.pingErr }
func (m *memJournal) Close() error               { return nil }

func newTestRouter(f crawl.Fetcher, j *memJournal) *gin.Engine {
	pool := crawl.NewPool(2, 4)
	runner := crawl.NewRunner(f, pool, crawl.WithJournal(j), crawl.WithLogger(logger.Discard()))
	return NewHandler(f, runner, j, logger.Discard()).Router()
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestFetch_OK(t *testing.T) {
	var got *httpclient.Request
	f := fetchFunc(func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
		got = req
		return &httpclient.Response{URL: req.URL, OK: true, Status: 200, StatusText: "OK", Type: content.TypeJSON, Data: map[string]any{"a": 1.0}}, nil
	})
	j := &memJournal{}
	w, out := do(t, newTestRouter(f, j), http.MethodPost, "/fetch",
		`{"url":"https://a.test/","method":"post","headers":{"X-A":"1"},"body":{"q":"x"},"timeout":1500,"retries":2}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "json", out["type"])
	assert.Equal(t, map[string]any{"a": 1.0}, out["data"])
	assert.Equal(t, 1500*time.Millisecond, got.Timeout)
	assert.Equal(t, 2, got.Retries)
	assert.Equal(t, []string{"1"}, got.Headers["X-A"])
	assert.Equal(t, map[string]any{"q": "x"}, got.Body)
	require.Len(t, j.entries, 1)
	assert.True(t, j.entries[0].OK)
}

func TestFetch_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", shared.ErrValidation, http.StatusBadRequest, "Validation"},
		{"parse", &content.ParseError{Format: "json", Err: errors.New("bad")}, http.StatusUnprocessableEntity, "Parse"},
		{"decode", &content.DecodeError{Charset: "utf-8", Err: errors.New("bad")}, http.StatusUnprocessableEntity, "Decode"},
		{"transport", &httpclient.TransportError{Err: errors.New("refused")}, http.StatusBadGateway, "Transport"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fetchFunc(func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
				return nil, &httpclient.FetchError{
					Err:      tt.err,
					Request:  &httpclient.Request{URL: req.URL, Method: "GET", Headers: httpclient.Headers{"cookie": {"sid=1"}}},
					Response: &httpclient.Response{Status: 200, Type: content.TypeText},
				}
			})
			w, out := do(t, newTestRouter(f, &memJournal{}), http.MethodPost, "/fetch", `{"url":"https://a.test/"}`)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.kind, out["kind"])
			req := out["request"].(map[string]any)
			assert.Equal(t, "https://a.test/", req["url"])
			assert.Equal(t, []any{"[REDACTED]"}, req["headers"].(map[string]any)["cookie"])
			assert.NotNil(t, out["response"])
		})
	}
}

func TestFetch_BadInput(t *testing.T) {
	r := newTestRouter(fetchFunc(func(context.Context, *httpclient.Request) (*httpclient.Response, error) {
		t.Fatal("fetch must not be called")
		return nil, nil
	}), &memJournal{})

	for _, body := range []string{`{`, `{"url":"https://a.test/","timeout":-1}`, `{"url":"https://a.test/","responseType":"stream"}`} {
		w, out := do(t, r, http.MethodPost, "/fetch", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "Validation", out["kind"], body)
	}
}

func TestCrawl(t *testing.T) {
	f := fetchFunc(func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
		if strings.Contains(req.URL, "down") {
			return nil, &httpclient.FetchError{Err: &httpclient.TransportError{Err: errors.New("refused")}, Request: req}
		}
		return &httpclient.Response{URL: req.URL, OK: true, Status: 200, Type: content.TypeText, Data: "hi"}, nil
	})
	j := &memJournal{}
	w, out := do(t, newTestRouter(f, j), http.MethodPost, "/crawl",
		`{"requests":[{"url":"https://a.test/"},{"url":"https://down.test/"}]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := out["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "hi", first["response"].(map[string]any)["data"])
	second := results[1].(map[string]any)
	assert.Equal(t, "Transport", second["error"].(map[string]any)["kind"])
	assert.Len(t, j.entries, 2)

	w, _ = do(t, newTestRouter(f, j), http.MethodPost, "/crawl", `{"requests":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistory(t *testing.T) {
	j := &memJournal{}
	require.NoError(t, j.Record(context.Background(),
		journal.Entry{ID: "1", URL: "https://a.test/1"},
		journal.Entry{ID: "2", URL: "https://a.test/2"},
	))
	r := newTestRouter(fetchFunc(nil), j)

	w, out := do(t, r, http.MethodGet, "/history?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := out["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "2", entries[0].(map[string]any)["id"])

	w, out = do(t, r, http.MethodGet, "/history/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://a.test/1", out["url"])

	w, out = do(t, r, http.MethodGet, "/history/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", out["kind"])

	w, _ = do(t, r, http.MethodGet, "/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	j := &memJournal{}
	r := newTestRouter(fetchFunc(nil), j)
	w, out := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])

	j.pingErr = errors.New("db down")
	w, _ = do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, StatusFor(&httpclient.TransportError{Err: shared.ErrEmptyResponse}))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(shared.ErrDependencyFailure))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("x")))
}
