package handlers

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFilename folds accents away and replaces whatever is left outside
// printable ASCII, for clients that ignore filename*
func asciiFilename(name string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, folded)
	if strings.Trim(ascii, "_. ") == "" {
		return "download"
	}
	return ascii
}

// contentDisposition builds an attachment header carrying both the ASCII
// fallback and the RFC 5987 UTF-8 name
func contentDisposition(filename string) string {
	fallback := asciiFilename(filename)
	if fallback == filename {
		return fmt.Sprintf(`attachment; filename="%s"`, fallback)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		fallback, strings.ReplaceAll(url.QueryEscape(filename), "+", "%20"))
}
