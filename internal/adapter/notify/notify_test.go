package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlfetch/internal/crawl"
	"crawlfetch/internal/platform/httpclient"
	"crawlfetch/internal/platform/logger"
	"crawlfetch/internal/shared"
)

func failures(n int) []crawl.Result {
	out := make([]crawl.Result, n)
	for i := range out {
		out[i] = crawl.Result{
			Request:  &httpclient.Request{URL: "https://a.test/" + strings.Repeat("x", i)},
			Response: &httpclient.Response{Status: http.StatusServiceUnavailable},
		}
	}
	return out
}

func TestSummary(t *testing.T) {
	res := []crawl.Result{
		{Request: &httpclient.Request{URL: "https://down.test/"}, Err: &httpclient.TransportError{Err: errors.New("refused")}},
		{Request: &httpclient.Request{URL: "https://a.test/"}, Response: &httpclient.Response{Status: 503}},
	}
	assert.Equal(t, "crawl: 2 failed\nTransport https://down.test/: refused\nHTTP 503 https://a.test/", Summary(res))

	long := Summary(failures(maxLines + 5))
	assert.Contains(t, long, "... and 5 more")
	assert.Equal(t, maxLines+2, strings.Count(long, "\n")+1)
}

func TestThrottle(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottle(time.Minute)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow())
	assert.False(t, th.Allow())
	now = now.Add(time.Minute)
	assert.True(t, th.Allow())

	assert.True(t, NewThrottle(0).Allow())
	assert.True(t, NewThrottle(0).Allow())
}

func TestTelegram_NotifyFailures(t *testing.T) {
	var mu sync.Mutex
	var paths, bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"group"}}}`)
	}))
	defer srv.Close()

	n, err := NewTelegram(TelegramOptions{
		Token: "123:abc", ChatID: -100, ServerURL: srv.URL, Every: time.Hour, Logger: logger.Discard(),
	})
	require.NoError(t, err)

	require.NoError(t, n.NotifyFailures(context.Background(), nil))
	require.NoError(t, n.NotifyFailures(context.Background(), failures(2)))
	require.NoError(t, n.NotifyFailures(context.Background(), failures(1)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", paths[0])
	assert.Contains(t, bodies[0], "crawl: 2 failed")
	assert.Contains(t, bodies[0], "-100")
}

func TestTelegram_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	n, err := NewTelegram(TelegramOptions{Token: "123:abc", ChatID: 1, ServerURL: srv.URL, Logger: logger.Discard()})
	require.NoError(t, err)

	err = n.NotifyFailures(context.Background(), failures(1))
	assert.ErrorIs(t, err, shared.ErrDependencyFailure)
}

func TestNewTelegram_Validation(t *testing.T) {
	_, err := NewTelegram(TelegramOptions{Token: "123:abc"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNop(t *testing.T) {
	var n crawl.Notifier = Nop{}
	assert.NoError(t, n.NotifyFailures(context.Background(), failures(1)))
}
