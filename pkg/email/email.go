package email

import (
	"regexp"
	"strings"
	"unicode"
)

var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Valid reports whether the address looks like a deliverable email.
func Valid(address string) bool {
	return addressPattern.MatchString(address)
}

// Normalize lowercases and trims an address so lookups are consistent.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SplitDisplayName splits a display name into first/last parts, falling back
// to the email local part when the display name is empty. Used when a
// credential recipient is created lazily from an email address.
func SplitDisplayName(displayName, address string) (string, string) {
	parts := strings.Fields(strings.TrimSpace(displayName))
	if len(parts) == 0 {
		return DeriveNameFromEmail(address)
	}
	first := parts[0]
	last := ""
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

// DeriveNameFromEmail guesses a first/last name from the local part of an
// email address. Best-effort only; recipients can correct it later.
func DeriveNameFromEmail(address string) (string, string) {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "Unknown", ""
	}

	first := capitalize(parts[0])
	last := ""
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
