package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = bluemonday.UGCPolicy()

// Sanitize strips script and other unsafe markup from user supplied HTML.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
