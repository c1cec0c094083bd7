package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
)

const (
	EncUTF8      = "utf-8"
	EncEUCKR     = "euc-kr"
	EncLatin1    = "latin-1"
	EncUTF8Lossy = "utf-8-lossy"
)

// DefaultEncodings is the decode chain used when Options.Encodings is empty.
var DefaultEncodings = []string{EncUTF8, EncEUCKR, EncLatin1}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw bytes to text using the first encoding in chain that
// accepts them. It never fails: when every encoding rejects the input the
// bytes are decoded as UTF-8 with invalid sequences dropped. The second
// return value names the encoding that was used.
func Decode(b []byte, chain []string) (string, string) {
	if len(chain) == 0 {
		chain = DefaultEncodings
	}
	for _, name := range chain {
		if s, ok := decodeAs(b, name); ok {
			return s, canonicalName(name)
		}
	}
	return strings.ToValidUTF8(string(bytes.TrimPrefix(b, utf8BOM)), ""), EncUTF8Lossy
}

func canonicalName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return EncUTF8
	case "euc-kr", "euckr", "cp949", "uhc":
		return EncEUCKR
	case "latin-1", "latin1", "iso-8859-1":
		return EncLatin1
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

func decodeAs(b []byte, name string) (string, bool) {
	var enc encoding.Encoding
	switch canonicalName(name) {
	case EncUTF8:
		b = bytes.TrimPrefix(b, utf8BOM)
		if !utf8.Valid(b) {
			return "", false
		}
		return string(b), true
	case EncEUCKR:
		enc = korean.EUCKR
	case EncLatin1:
		enc = charmap.ISO8859_1
	default:
		e, err := htmlindex.Get(name)
		if err != nil {
			return "", false
		}
		enc = e
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	// x/text decoders substitute U+FFFD instead of failing.
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

// HashBytes returns the hex sha256 of data, truncated to hexLen characters
// when 0 < hexLen < 64.
func HashBytes(data []byte, hexLen int) string {
	sum := sha256.Sum256(data)
	full := hex.EncodeToString(sum[:])
	if hexLen <= 0 || hexLen >= len(full) {
		return full
	}
	return full[:hexLen]
}
