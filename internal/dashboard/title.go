package dashboard

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PageTitle names a page after the last segment of its path.
// The root path is the "Dashboard".
func PageTitle(path string) string {
	var last string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			last = segment
		}
	}
	if last == "" {
		return "Dashboard"
	}

	r, size := utf8.DecodeRuneInString(last)
	return string(unicode.ToUpper(r)) + strings.ToLower(last[size:])
}
