package internal

import (
	"strings"
	"unicode"
)

func SanitizeString(input string) string {
	return strings.ToValidUTF8(input, string(unicode.ReplacementChar))
}
