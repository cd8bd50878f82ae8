package httpclient

import (
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlfetch/internal/shared"
)

func TestProxyCache_SharesTransport(t *testing.T) {
	var built atomic.Int32
	c := NewProxyCache(func(p *url.URL) *http.Transport {
		built.Add(1)
		return newTransport(p)
	})

	const n = 50
	got := make([]*http.Transport, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := c.Get("http://proxy.local:3128")
			assert.NoError(t, err)
			got[i] = tr
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, tr := range got {
		assert.Same(t, got[0], tr)
	}

	direct, err := c.Get("")
	require.NoError(t, err)
	assert.NotSame(t, got[0], direct)
	assert.Nil(t, direct.Proxy)
	assert.Equal(t, 2, c.Len())
}

func TestProxyCache_ProxyFunc(t *testing.T) {
	c := NewProxyCache(nil)
	tr, err := c.Get("socks5://user:pw@127.0.0.1:1080")
	require.NoError(t, err)
	require.NotNil(t, tr.Proxy)

	req, _ := http.NewRequest(http.MethodGet, "http://example.test", nil)
	u, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1080", u.Host)
	assert.True(t, tr.DisableCompression)
}

func TestProxyCache_Invalid(t *testing.T) {
	c := NewProxyCache(nil)
	for _, p := range []string{"ftp://p:21", "http://", "::bad"} {
		_, err := c.Get(p)
		assert.ErrorIs(t, err, shared.ErrValidation, p)
	}
	assert.Equal(t, 0, c.Len())
}
