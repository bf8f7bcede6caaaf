package auth

import (
	"strings"
	"unicode"
)

const defaultInitials = "AD"

// Initials picks up to two letters for an avatar: from the username,
// then the local part of the email, then fallback, then "AD".
func Initials(username, email, fallback string) string {
	if s := initialsOf(username); s != "" {
		return s
	}

	local, _, _ := strings.Cut(email, "@")
	if s := initialsOf(local); s != "" {
		return s
	}

	if s := initialsOf(fallback); s != "" {
		return s
	}
	return defaultInitials
}

func initialsOf(value string) string {
	var b []rune
	for _, part := range strings.Fields(value) {
		b = append(b, unicode.ToUpper([]rune(part)[0]))
		if len(b) == 2 {
			break
		}
	}
	return string(b)
}
