package content

import (
	"io"

	"github.com/clbanning/mxj/v2"
)

func init() {
	// Bodies reach the XML parser already decoded to UTF-8, so a declared
	// encoding must not trigger a second conversion.
	mxj.XmlCharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
}

// XMLToJSON converts an XML document into the value a JSON decoder would
// produce for the equivalent object. The document element is unwrapped;
// attributes are keyed with a leading "-" and mixed text with "#text".
func XMLToJSON(doc []byte) (any, error) {
	m, err := mxj.NewMapXml(doc)
	if err != nil {
		return nil, err
	}
	if len(m) == 1 {
		for _, v := range m {
			return v, nil
		}
	}
	return map[string]any(m), nil
}
