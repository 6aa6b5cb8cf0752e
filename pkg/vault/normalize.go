package vault

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeMountName maps arbitrary human text to a label safe for use as an
// OS mount name, composed only of ASCII letters, digits and underscore.
//
// The input is decomposed to NFD so accented characters contribute their base
// letter. Whitespace and ASCII punctuation become a single underscore (runs
// collapse); everything non-ASCII that survives decomposition is dropped.
// The result may be empty, which callers must treat as a rejection.
func NormalizeMountName(s string) string {
	decomposed := norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(decomposed))

	appendSeparator := func() {
		out := b.String()
		if len(out) == 0 || out[len(out)-1] != '_' {
			b.WriteByte('_')
		}
	}

	for _, r := range decomposed {
		switch {
		case unicode.IsSpace(r):
			appendSeparator()
		case r < 127 && isASCIIAlnum(r):
			b.WriteRune(r)
		case r < 127:
			appendSeparator()
		default:
			// Combining marks and non-ASCII symbols are dropped.
		}
	}
	return b.String()
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
