package service

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// decodeText converts b to a string, substituting U+FFFD for invalid UTF-8
// sequences. valid is false when a substitution happened.
func decodeText(b []byte) (text string, valid bool) {
	if utf8.Valid(b) {
		return string(b), true
	}

	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError)), false
	}
	return string(out), false
}
