package api

import (
	"errors"
	"fmt"
	"time"

	"crawlfetch/internal/crawl"
	"crawlfetch/internal/journal"
	"crawlfetch/internal/platform/httpclient"
	"crawlfetch/internal/shared"
)

// FetchRequest is the JSON form of httpclient.Request. Timeout is in
// milliseconds.
type FetchRequest struct {
	httpclient.Request
	TimeoutMS int64 `json:"timeout,omitempty"`
}

func (r FetchRequest) toRequest() (*httpclient.Request, error) {
	if r.TimeoutMS < 0 {
		return nil, fmt.Errorf("%w: timeout must not be negative", shared.ErrValidation)
	}
	if r.ResponseType == httpclient.TypeStream {
		return nil, fmt.Errorf("%w: responseType stream is not available over the API", shared.ErrValidation)
	}
	req := r.Request
	req.Timeout = time.Duration(r.TimeoutMS) * time.Millisecond
	return &req, nil
}

// CrawlRequest is the body of POST /crawl.
type CrawlRequest struct {
	Requests []FetchRequest `json:"requests"`
}

// ErrorResponse describes a failed fetch. Request and Response are set when
// the failure happened after normalization.
type ErrorResponse struct {
	Error    string               `json:"error"`
	Kind     string               `json:"kind"`
	Request  *RequestView         `json:"request,omitempty"`
	Response *httpclient.Response `json:"response,omitempty"`
}

// RequestView is the normalized request echoed in errors.
type RequestView struct {
	URL          string             `json:"url"`
	Method       string             `json:"method"`
	Headers      httpclient.Headers `json:"headers,omitempty"`
	TimeoutMS    int64              `json:"timeout"`
	Retries      int                `json:"retries"`
	MaxRedirects int                `json:"maxRedirects"`
	ResponseType string             `json:"responseType,omitempty"`
	Proxy        string             `json:"proxy,omitempty"`
}

// CrawlItem is one element of the POST /crawl response.
type CrawlItem struct {
	Entry    journal.Entry        `json:"entry"`
	Response *httpclient.Response `json:"response,omitempty"`
	Error    *ErrorResponse       `json:"error,omitempty"`
}

func errorResponse(err error) ErrorResponse {
	out := ErrorResponse{Error: err.Error(), Kind: shared.KindOf(err).String()}
	var fe *httpclient.FetchError
	if errors.As(err, &fe) {
		out.Response = fe.Response
		if r := fe.Request; r != nil {
			out.Request = &RequestView{
				URL:          r.URL,
				Method:       r.Method,
				Headers:      redactHeaders(r.Headers),
				TimeoutMS:    r.Timeout.Milliseconds(),
				Retries:      r.Retries,
				MaxRedirects: r.MaxRedirects,
				ResponseType: string(r.ResponseType),
				Proxy:        r.Proxy,
			}
		}
	}
	return out
}

var sensitiveHeaders = []string{"authorization", "proxy-authorization", "cookie"}

func redactHeaders(h httpclient.Headers) httpclient.Headers {
	out := h.Clone()
	for _, k := range sensitiveHeaders {
		if out.Has(k) {
			out.Set(k, "[REDACTED]")
		}
	}
	return out
}

func crawlItems(results []crawl.Result) []CrawlItem {
	out := make([]CrawlItem, len(results))
	for i, r := range results {
		out[i] = CrawlItem{Entry: r.Entry, Response: r.Response}
		if r.Err != nil {
			e := errorResponse(r.Err)
			out[i].Error = &e
		}
	}
	return out
}
