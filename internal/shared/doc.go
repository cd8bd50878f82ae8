// Package shared contains common error types and utilities for error handling
// across the application without domain-specific logic.
//
// # Error Types and Classification
//
// The sentinels describe the outcomes a fetch can end in:
//
//   - ErrValidation: the request could not be normalized
//   - ErrTransport: network failure reported by the transport
//   - ErrEmptyResponse: the connection was closed before a response arrived
//   - ErrTimeout: the transport call timed out
//   - ErrDecode: the body could not be decoded in the requested charset
//   - ErrParse: the body is not valid JSON/XML
//   - ErrNotFound: a journal entry does not exist
//   - ErrDependencyFailure: a storage or notification backend failed
//
// Typed errors from other packages (content.DecodeError, content.ParseError,
// httpclient.TransportError) report their sentinel through an Is method, so
// KindOf classifies them without extra wrapping:
//
//	switch shared.KindOf(err) {
//	case shared.KindDecode, shared.KindParse:
//	    // the caller forced a response type the body does not satisfy
//	case shared.KindEmptyResponse:
//	    // the remote hung up twice
//	}
//
// # Kind Priority Table
//
//	Priority | Kind
//	---------|------------------
//	1        | KindCanceled
//	2        | KindTimeout
//	3        | KindValidation
//	4        | KindNotFound
//	5        | KindEmptyResponse
//	6        | KindDecode
//	7        | KindParse
//	8        | KindTransport
//	9        | KindDependencyFailure
package shared
