package utils

import "regexp"

var whitespace = regexp.MustCompile(`\s`)

// EscapeSpace backslash-escapes every whitespace character so a keyword
// like "a b" is matched as one literal run rather than split apart.
func EscapeSpace(text string) string {
	return whitespace.ReplaceAllStringFunc(text, func(s string) string {
		return `\` + s
	})
}
