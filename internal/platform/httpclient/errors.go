package httpclient

import (
	"errors"
	"fmt"
	"net/url"

	"crawlfetch/internal/shared"
)

// FetchError is returned by Client.Fetch. Request is the normalized request
// of the last attempt; Response is the last response received, if any.
type FetchError struct {
	Err      error
	Request  *Request
	Response *Response
	Stats    Stats
}

func (e *FetchError) Error() string { return e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// TransportError is a failure below HTTP semantics: connect, TLS, reset,
// truncated body. Response is set when headers were received first.
type TransportError struct {
	Err      error
	Response *RawResponse
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == shared.ErrTransport
}

// stripTransport removes the *url.Error envelope added by net/http.
func stripTransport(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return &TransportError{Err: unwrapURLError(te.Err), Response: te.Response}
	}
	return &TransportError{Err: unwrapURLError(err)}
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}

func emptyResponse(u string) *TransportError {
	return &TransportError{Err: fmt.Errorf("%w: %s", shared.ErrEmptyResponse, u)}
}
