package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// Response is the resolved result of a fetch.
//
// Data holds []byte for buffer, string for text, the decoded value for json
// and an io.ReadCloser for stream. Stream bodies must be closed by the caller.
type Response struct {
	URL        string       `json:"url"`
	Headers    http.Header  `json:"headers"`
	Cookies    []string     `json:"cookies"`
	OK         bool         `json:"ok"`
	Status     int          `json:"status"`
	StatusText string       `json:"statusText"`
	Type       ResponseType `json:"type"`
	Data       any          `json:"data"`
	Stats      Stats        `json:"-"`
}

// Stats describes how a response was obtained.
type Stats struct {
	Elapsed time.Duration
	Calls   int
}

// IsOK reports whether status is a 2xx code or 304 Not Modified.
func IsOK(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotModified
}

// RawResponse is what a Transport returns for one attempt.
type RawResponse struct {
	URL        string
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	// Stream is set instead of Body when a stream was requested.
	Stream io.ReadCloser
}

func (r *RawResponse) close() {
	if r != nil && r.Stream != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(r.Stream, 64<<10))
		_ = r.Stream.Close()
		r.Stream = nil
	}
}

// buffered converts r into a buffer-typed Response.
func (r *RawResponse) buffered() *Response {
	if r == nil {
		return nil
	}
	resp := r.base()
	resp.Type = TypeBuffer
	resp.Data = r.Body
	return resp
}

func (r *RawResponse) base() *Response {
	h := r.Header
	if h == nil {
		h = http.Header{}
	}
	return &Response{
		URL:        r.URL,
		Headers:    h,
		Cookies:    h.Values("Set-Cookie"),
		OK:         IsOK(r.Status),
		Status:     r.Status,
		StatusText: r.StatusText,
	}
}

func (r *RawResponse) readAll() error {
	if r.Stream == nil {
		return nil
	}
	defer r.Stream.Close()
	b, err := io.ReadAll(r.Stream)
	r.Stream = nil
	if err != nil {
		return err
	}
	r.Body = b
	return nil
}

func (r *RawResponse) stream() io.ReadCloser {
	if r.Stream != nil {
		return r.Stream
	}
	return io.NopCloser(bytes.NewReader(r.Body))
}
