// Package decode turns raw note bytes into UTF-8 text, sniffing the charset
// and falling back through a fixed list of encodings.
package decode

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/starford/trevanbox/internal/apperr"
)

const (
	CharsetUTF8    = "utf-8"
	CharsetGB18030 = "gb18030"
	CharsetLatin1  = "latin-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Fallbacks is the order tried when the sniffed charset does not decode.
var Fallbacks = []string{CharsetUTF8, CharsetGB18030, CharsetLatin1}

// Decoder converts bytes to text.
type Decoder struct {
	detect bool
}

// New returns a Decoder. With detect disabled only the fallback chain is used.
func New(detect bool) *Decoder {
	return &Decoder{detect: detect}
}

// Decode returns the text and the charset it was decoded with.
func (d *Decoder) Decode(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), CharsetUTF8, nil
	}

	candidates := make([]string, 0, len(Fallbacks)+1)
	if d.detect {
		if cs := sniff(data); cs != "" {
			candidates = append(candidates, cs)
		}
	}
	candidates = append(candidates, Fallbacks...)

	tried := make(map[string]struct{}, len(candidates))
	for _, cs := range candidates {
		if _, dup := tried[cs]; dup {
			continue
		}
		tried[cs] = struct{}{}
		if text, ok := decodeAs(data, cs); ok {
			return text, cs, nil
		}
	}
	return "", "", fmt.Errorf("%w: no charset in %v decodes the input", apperr.ErrDecode, candidates)
}

// sniff returns a normalized charset name, or "" when detection is unsure.
func sniff(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil {
		return ""
	}
	return Normalize(res.Charset)
}

// Normalize maps detector output onto the names used here. GB2312 and GBK are
// subsets of GB18030, so they decode with the superset.
func Normalize(charset string) string {
	cs := strings.ToLower(strings.TrimSpace(charset))
	switch cs {
	case "":
		return ""
	case "utf-8", "utf8", "ascii", "us-ascii":
		return CharsetUTF8
	case "gb2312", "gbk", "gb-18030", "gb18030":
		return CharsetGB18030
	case "iso-8859-1", "latin-1", "latin1":
		return CharsetLatin1
	default:
		return cs
	}
}

func decodeAs(data []byte, charset string) (string, bool) {
	if charset == CharsetUTF8 {
		if !utf8.Valid(data) {
			return "", false
		}
		return string(data), true
	}

	enc := lookup(charset)
	if enc == nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	// x/text substitutes U+FFFD for undecodable input instead of failing;
	// treat any substitution the input did not already contain as a miss.
	if bytes.Contains(out, []byte(string(utf8.RuneError))) && !bytes.Contains(data, []byte(string(utf8.RuneError))) {
		return "", false
	}
	return string(out), true
}

func lookup(charset string) encoding.Encoding {
	switch charset {
	case CharsetGB18030:
		return simplifiedchinese.GB18030
	case CharsetLatin1:
		return charmap.ISO8859_1
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil
	}
	return enc
}
