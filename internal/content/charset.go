package content

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// detector names differ from WHATWG labels for a few encodings.
var detectorAliases = map[string]string{
	"gb-18030": "gb18030",
}

var cjkCharsets = map[string]struct{}{
	"gb18030":     {},
	"big5":        {},
	"euc-jp":      {},
	"shift_jis":   {},
	"iso-2022-jp": {},
	"euc-kr":      {},
	"iso-2022-kr": {},
	"iso-2022-cn": {},
	"utf-8":       {},
}

// DetectCharset guesses the charset of body. With cjk set the detector
// prefers candidates for Chinese, Japanese and Korean scripts over the
// single best guess.
func DetectCharset(body []byte, cjk bool) (string, bool) {
	d := chardet.NewTextDetector()
	if cjk {
		all, err := d.DetectAll(body)
		if err != nil || len(all) == 0 {
			return "", false
		}
		for _, r := range all {
			name := normalizeCharset(r.Charset)
			if _, ok := cjkCharsets[name]; ok {
				return name, true
			}
		}
		return normalizeCharset(all[0].Charset), true
	}
	best, err := d.DetectBest(body)
	if err != nil || best == nil || best.Charset == "" {
		return "", false
	}
	return normalizeCharset(best.Charset), true
}

// DecodeString converts body from the named charset to a UTF-8 string.
// Unknown charsets and byte sequences that are invalid in the charset
// produce a *DecodeError.
func DecodeString(body []byte, name string) (string, error) {
	enc, canonical := charset.Lookup(normalizeCharset(name))
	if enc == nil {
		return "", &DecodeError{Charset: name, Err: errUnknownCharset}
	}
	if canonical == "utf-8" {
		body = bytes.TrimPrefix(body, utf8BOM)
		if !utf8.Valid(body) {
			return "", &DecodeError{Charset: canonical, Err: errInvalidBytes}
		}
		return string(body), nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", &DecodeError{Charset: canonical, Err: err}
	}
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.Contains(body, []byte(string(utf8.RuneError))) {
		return "", &DecodeError{Charset: canonical, Err: errInvalidBytes}
	}
	return string(out), nil
}

func normalizeCharset(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := detectorAliases[n]; ok {
		return alias
	}
	return n
}
