package content

import (
	"github.com/goccy/go-json"
)

// Type is the resolved type of a response.
type Type string

const (
	TypeBuffer Type = "buffer"
	TypeText   Type = "text"
	TypeJSON   Type = "json"
	TypeStream Type = "stream"
)

// Valid reports whether t is empty (auto) or one of the known types.
func (t Type) Valid() bool {
	switch t {
	case "", TypeBuffer, TypeText, TypeJSON, TypeStream:
		return true
	}
	return false
}

// Options controls Decode.
type Options struct {
	// Type forces the result type; empty selects it from the resolution.
	Type Type
	// Charset overrides the charset announced by the response.
	Charset    string
	Resolution Resolution
	// CJK selects the script-aware charset detector.
	CJK bool
}

// Result is a decoded body. Data is []byte for buffers, string for text and
// the decoded JSON value for json.
type Result struct {
	Type Type
	Data any
}

// Decode turns body into a typed result.
//
// With a forced text or json type every failure is returned as a
// *DecodeError or *ParseError. Without one, failures fall back to the raw
// bytes typed as buffer.
func Decode(body []byte, opts Options) (Result, error) {
	if opts.Type == TypeBuffer {
		return Result{Type: TypeBuffer, Data: body}, nil
	}
	if len(body) == 0 {
		return Result{Type: TypeText, Data: ""}, nil
	}

	res := opts.Resolution
	if !res.Known() {
		res = Sniff(body)
	}

	switch opts.Type {
	case TypeText, TypeJSON:
		return decodeAs(body, opts.Type, opts.Charset, res, opts.CJK)
	case "":
	default:
		return Result{Type: TypeBuffer, Data: body}, nil
	}

	if res.Structure == StructureOctetStream || !res.Textual() {
		return Result{Type: TypeBuffer, Data: body}, nil
	}
	want := TypeText
	if res.Structure == StructureJSON || res.Structure == StructureXML {
		want = TypeJSON
	}
	r, err := decodeAs(body, want, opts.Charset, res, opts.CJK)
	if err != nil {
		return Result{Type: TypeBuffer, Data: body}, nil
	}
	return r, nil
}

func decodeAs(body []byte, want Type, explicit string, res Resolution, cjk bool) (Result, error) {
	cs := explicit
	if cs == "" {
		cs = res.Charset
	}
	if cs == "" {
		detected, ok := DetectCharset(body, cjk)
		if !ok {
			return Result{}, &DecodeError{Err: errNoCharset}
		}
		cs = detected
	}

	text, err := DecodeString(body, cs)
	if err != nil {
		return Result{}, err
	}
	if want == TypeText {
		return Result{Type: TypeText, Data: text}, nil
	}

	if res.Structure == StructureXML {
		v, err := XMLToJSON([]byte(text))
		if err != nil {
			return Result{}, &ParseError{Format: "xml", Preview: Preview(text), Err: err}
		}
		return Result{Type: TypeJSON, Data: v}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Result{}, &ParseError{Format: "json", Preview: Preview(text), Err: err}
	}
	return Result{Type: TypeJSON, Data: v}, nil
}
