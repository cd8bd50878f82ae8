package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"crawlfetch/internal/shared"
)

// ProxyCache keeps one connection-pooled transport per proxy URL. The empty
// key is the direct (no proxy) transport. Entries live as long as the cache.
type ProxyCache struct {
	mu         sync.RWMutex
	transports map[string]*http.Transport
	build      func(proxy *url.URL) *http.Transport
}

// NewProxyCache returns a cache using build to create transports; nil selects
// the default tuning.
func NewProxyCache(build func(proxy *url.URL) *http.Transport) *ProxyCache {
	if build == nil {
		build = newTransport
	}
	return &ProxyCache{
		transports: make(map[string]*http.Transport),
		build:      build,
	}
}

// Get returns the transport for proxy, creating it on first use. Concurrent
// callers with the same proxy share one instance.
func (c *ProxyCache) Get(proxy string) (*http.Transport, error) {
	key, u, err := parseProxy(proxy)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	tr, ok := c.transports[key]
	c.mu.RUnlock()
	if ok {
		return tr, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok = c.transports[key]; ok {
		return tr, nil
	}
	tr = c.build(u)
	c.transports[key] = tr
	return tr, nil
}

// Len returns the number of cached transports.
func (c *ProxyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.transports)
}

// CloseIdleConnections closes idle connections of every cached transport.
func (c *ProxyCache) CloseIdleConnections() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, tr := range c.transports {
		tr.CloseIdleConnections()
	}
}

func parseProxy(proxy string) (string, *url.URL, error) {
	if proxy == "" {
		return "", nil, nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return "", nil, fmt.Errorf("%w: proxy: %v", shared.ErrValidation, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return "", nil, fmt.Errorf("%w: proxy scheme %q", shared.ErrValidation, u.Scheme)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("%w: proxy host is empty", shared.ErrValidation)
	}
	return u.String(), u, nil
}

func newTransport(proxy *url.URL) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	if proxy != nil {
		tr.Proxy = http.ProxyURL(proxy)
	}
	tr.MaxIdleConns = 100
	tr.MaxConnsPerHost = 100
	tr.MaxIdleConnsPerHost = 100
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	// Content-Encoding is handled by HTTPTransport.
	tr.DisableCompression = true
	return tr
}
