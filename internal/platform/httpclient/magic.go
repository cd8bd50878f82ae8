package httpclient

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

var magicPattern = regexp.MustCompile(`\{(ts|ms|rand|date)(?::([^{}]*))?\}`)

// dateTokens are matched longest first.
var dateTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"SSS", ".000"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
	{"M", "1"},
	{"D", "2"},
	{"H", "H"},
	{"m", "4"},
	{"s", "5"},
}

// ExpandMagic substitutes {ts}, {ms}, {rand}, {date} and {date:<fmt>} in s.
// Unknown placeholders are left as is.
//
// The date format uses YYYY-MM-DD style tokens; a format containing '%' is
// treated as strftime.
func ExpandMagic(s string, now time.Time, rnd func() float64) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return magicPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := magicPattern.FindStringSubmatch(m)
		name, format := sub[1], sub[2]
		hasFormat := strings.Contains(m, ":")
		switch name {
		case "ts":
			if hasFormat {
				return m
			}
			return strconv.FormatInt(now.Unix(), 10)
		case "ms":
			if hasFormat {
				return m
			}
			return strconv.FormatInt(now.UnixMilli(), 10)
		case "rand":
			if hasFormat {
				return m
			}
			return strconv.FormatFloat(rnd(), 'f', -1, 64)
		default:
			if !hasFormat || format == "" {
				return now.Format("2006-01-02")
			}
			return formatDate(now, format)
		}
	})
}

func formatDate(t time.Time, format string) string {
	if strings.Contains(format, "%") {
		return strftime.Format(format, t)
	}

	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		matched := false
		for _, tok := range dateTokens {
			if strings.HasPrefix(format[i:], tok.token) {
				b.WriteString(formatToken(t, tok.token, tok.layout))
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}

func formatToken(t time.Time, token, layout string) string {
	switch token {
	case "H":
		return strconv.Itoa(t.Hour())
	case "SSS":
		return t.Format(layout)[1:]
	}
	return t.Format(layout)
}
