package content

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"

	"crawlfetch/internal/shared"
)

const echoJSON = `{"foo":"Hello","bar":"World"}`

var echoValue = map[string]any{"foo": "Hello", "bar": "World"}

func TestDecode_ForcedBuffer(t *testing.T) {
	body := []byte{0xff, 0x00, 0x01}
	r, err := Decode(body, Options{Type: TypeBuffer, Resolution: ParseContentType("application/json")})
	require.NoError(t, err)
	assert.Equal(t, TypeBuffer, r.Type)
	assert.Equal(t, body, r.Data)
}

func TestDecode_EmptyBody(t *testing.T) {
	for _, typ := range []Type{"", TypeText, TypeJSON} {
		t.Run(string(typ), func(t *testing.T) {
			r, err := Decode(nil, Options{Type: typ, Resolution: ParseContentType("application/json")})
			require.NoError(t, err)
			assert.Equal(t, TypeText, r.Type)
			assert.Equal(t, "", r.Data)
		})
	}

	r, err := Decode([]byte{}, Options{Resolution: ParseContentType("image/png")})
	require.NoError(t, err)
	assert.Equal(t, Result{Type: TypeText, Data: ""}, r)
}

func TestDecode_JSON(t *testing.T) {
	r, err := Decode([]byte(echoJSON), Options{Resolution: ParseContentType("application/json")})
	require.NoError(t, err)
	assert.Equal(t, TypeJSON, r.Type)
	assert.Equal(t, echoValue, r.Data)
}

func TestDecode_XMLAsJSON(t *testing.T) {
	doc := []byte(`<?xml version="1.0" encoding="UTF-8"?><root><foo>Hello</foo><bar>World</bar></root>`)

	forced, err := Decode(doc, Options{Type: TypeJSON, Resolution: ParseContentType("application/xml")})
	require.NoError(t, err)
	assert.Equal(t, TypeJSON, forced.Type)
	assert.Equal(t, echoValue, forced.Data)

	auto, err := Decode(doc, Options{Resolution: ParseContentType("text/xml")})
	require.NoError(t, err)
	assert.Equal(t, forced, auto)
}

func TestDecode_XMLDeclaredEncoding(t *testing.T) {
	body, err := simplifiedchinese.GBK.NewEncoder().String(`<?xml version="1.0" encoding="GBK"?><r><name>你好</name></r>`)
	require.NoError(t, err)

	r, err := Decode([]byte(body), Options{Type: TypeJSON, Resolution: ParseContentType("application/xml; charset=gbk")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "你好"}, r.Data)
}

func TestDecode_ForcedJSONMalformed(t *testing.T) {
	body := `<html><head><title>Service Unavailable</title></head></html>`
	_, err := Decode([]byte(body), Options{Type: TypeJSON, Resolution: ParseContentType("text/html; charset=utf-8")})
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "json", pe.Format)
	assert.Equal(t, "<html><head><title>Service Un...", pe.Preview)
	assert.LessOrEqual(t, utf8.RuneCountInString(pe.Preview), 32)
	assert.Contains(t, err.Error(), pe.Preview)
	assert.True(t, errors.Is(err, shared.ErrParse))
}

func TestDecode_ForcedJSONMalformedXML(t *testing.T) {
	_, err := Decode([]byte("<root><open></root>"), Options{Type: TypeJSON, Resolution: ParseContentType("application/xml")})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "xml", pe.Format)
}

func TestDecode_ForcedText(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String("你好，世界")
	require.NoError(t, err)

	t.Run("explicit charset", func(t *testing.T) {
		r, err := Decode([]byte(gbk), Options{Type: TypeText, Charset: "gbk", Resolution: ParseContentType("text/html")})
		require.NoError(t, err)
		assert.Equal(t, "你好，世界", r.Data)
	})

	t.Run("header charset", func(t *testing.T) {
		sjis, err := japanese.ShiftJIS.NewEncoder().String("こんにちは")
		require.NoError(t, err)
		r, err := Decode([]byte(sjis), Options{Type: TypeText, Resolution: ParseContentType("text/plain; charset=Shift_JIS")})
		require.NoError(t, err)
		assert.Equal(t, "こんにちは", r.Data)
	})

	t.Run("explicit charset overrides header", func(t *testing.T) {
		r, err := Decode([]byte(gbk), Options{Type: TypeText, Charset: "gb18030", Resolution: ParseContentType("text/html; charset=utf-8")})
		require.NoError(t, err)
		assert.Equal(t, "你好，世界", r.Data)
	})

	t.Run("unknown charset", func(t *testing.T) {
		_, err := Decode([]byte("hello"), Options{Type: TypeText, Charset: "x-no-such-charset"})
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "x-no-such-charset", de.Charset)
		assert.True(t, errors.Is(err, shared.ErrDecode))
	})

	t.Run("wrong explicit charset", func(t *testing.T) {
		_, err := Decode([]byte(gbk), Options{Type: TypeText, Charset: "utf-8", Resolution: ParseContentType("text/plain")})
		assert.ErrorIs(t, err, shared.ErrDecode)
	})

	t.Run("utf-8 bom stripped", func(t *testing.T) {
		r, err := Decode(append([]byte{0xEF, 0xBB, 0xBF}, "plain"...), Options{Type: TypeText, Charset: "utf-8"})
		require.NoError(t, err)
		assert.Equal(t, "plain", r.Data)
	})
}

func TestDecode_AutoFallsBackToBuffer(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		ct   string
	}{
		{"undecodable charset", []byte("hello world"), "text/plain; charset=x-no-such-charset"},
		{"invalid utf-8", []byte{0xff, 0xfe, 0xfd, 'a'}, "text/plain; charset=utf-8"},
		{"malformed json", []byte("{not json"), "application/json; charset=utf-8"},
		{"octet stream", []byte("plain text"), "application/octet-stream"},
		{"image", []byte("GIF89a...."), "image/gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(tt.body, Options{Resolution: ParseContentType(tt.ct)})
			require.NoError(t, err)
			assert.Equal(t, TypeBuffer, r.Type)
			assert.Equal(t, tt.body, r.Data)
		})
	}
}

func TestDecode_AutoDetectsCharset(t *testing.T) {
	page := "<html><body><p>Привет, мир! Это тестовая страница для проверки кодировки.</p></body></html>"
	r, err := Decode([]byte(page), Options{Resolution: ParseContentType("text/html")})
	require.NoError(t, err)
	assert.Equal(t, TypeText, r.Type)
	assert.Equal(t, page, r.Data)
}

func TestDecode_SniffsMissingContentType(t *testing.T) {
	r, err := Decode([]byte(echoJSON), Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeJSON, r.Type)
	assert.Equal(t, echoValue, r.Data)
}

func TestDetectCharset_CJK(t *testing.T) {
	text := strings.Repeat("北京欢迎你，今天天气很好。", 4)
	name, ok := DetectCharset([]byte(text), true)
	require.True(t, ok)
	assert.Equal(t, "utf-8", name)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	exact := strings.Repeat("a", 29)
	assert.Equal(t, exact, Preview(exact))
	assert.Equal(t, strings.Repeat("я", 29)+"...", Preview(strings.Repeat("я", 40)))
}

func TestType_Valid(t *testing.T) {
	assert.True(t, Type("").Valid())
	assert.True(t, TypeStream.Valid())
	assert.False(t, Type("blob").Valid())
}
