// Package content resolves response bodies: it classifies the content type,
// finds the charset and turns bytes into text, JSON values or raw buffers.
package content

import (
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Structure is the structural shape of a response body.
type Structure string

const (
	StructureText        Structure = "text"
	StructureJSON        Structure = "json"
	StructureXML         Structure = "xml"
	StructureBuffer      Structure = "buffer"
	StructureOctetStream Structure = "octet-stream"
)

// Resolution describes what a response body claims to be.
type Resolution struct {
	Structure Structure
	// MIME is the lower-cased media type without parameters; empty when the
	// response carried no Content-Type.
	MIME string
	// Prefix is the part of MIME before the slash ("*" for wildcards).
	Prefix  string
	Charset string
}

// Known reports whether the resolution came from a media type.
func (r Resolution) Known() bool { return r.MIME != "" }

// Textual reports whether the media type is a candidate for text decoding.
func (r Resolution) Textual() bool {
	switch r.Prefix {
	case "text", "application", "*":
		return true
	}
	return false
}

// Classify resolves the Content-Type header of a response.
func Classify(h http.Header) Resolution {
	return ParseContentType(h.Get("Content-Type"))
}

// ParseContentType splits a Content-Type value into media type and charset.
func ParseContentType(v string) Resolution {
	parts := strings.Split(v, ";")
	mime := strings.ToLower(strings.TrimSpace(parts[0]))

	var cs string
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if len(p) > len("charset=") && strings.EqualFold(p[:len("charset=")], "charset=") {
			cs = strings.Trim(strings.TrimSpace(p[len("charset="):]), `"'`)
			break
		}
	}

	return Resolution{
		Structure: structureOf(mime),
		MIME:      mime,
		Prefix:    prefixOf(mime),
		Charset:   cs,
	}
}

// Sniff guesses the media type of a body that arrived without one.
// The sniffed charset is dropped so detection stays statistical.
func Sniff(body []byte) Resolution {
	r := ParseContentType(mimetype.Detect(body).String())
	r.Charset = ""
	return r
}

// IsCJK reports whether an Accept-Language value asks for Chinese, Japanese
// or Korean content.
func IsCJK(acceptLanguage string) bool {
	l := strings.ToLower(acceptLanguage)
	return strings.Contains(l, "zh") || strings.Contains(l, "jp") || strings.Contains(l, "ko")
}

func prefixOf(mime string) string {
	if mime == "" {
		return ""
	}
	prefix, _, _ := strings.Cut(mime, "/")
	return prefix
}

func structureOf(mime string) Structure {
	if mime == "" {
		return StructureBuffer
	}
	prefix, sub, _ := strings.Cut(mime, "/")
	switch {
	case strings.HasSuffix(sub, "json"):
		return StructureJSON
	case sub == "xml" || strings.HasSuffix(sub, "+xml"):
		return StructureXML
	case sub == "octet-stream":
		return StructureOctetStream
	}
	switch prefix {
	case "text", "application", "*":
		return StructureText
	}
	return StructureBuffer
}
