package content

import (
	"errors"
	"fmt"

	"crawlfetch/internal/shared"
)

var (
	errUnknownCharset = errors.New("unknown charset")
	errNoCharset      = errors.New("charset could not be detected")
	errInvalidBytes   = errors.New("invalid byte sequence")
)

// previewLen is the number of characters of an offending body quoted in a ParseError.
const previewLen = 29

// DecodeError reports a body that could not be converted to text.
type DecodeError struct {
	Charset string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Charset == "" {
		return fmt.Sprintf("decode response body: %v", e.Err)
	}
	return fmt.Sprintf("decode response body as %s: %v", e.Charset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is match shared.ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == shared.ErrDecode }

// ParseError reports a body that is not structurally valid JSON or XML.
type ParseError struct {
	Format  string
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s in response body %q: %v", e.Format, e.Preview, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is lets errors.Is match shared.ErrParse.
func (e *ParseError) Is(target error) bool { return target == shared.ErrParse }

// Preview returns the first 29 characters of s followed by "..." when s is longer.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}
