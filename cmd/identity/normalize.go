package identity

import (
	"net/mail"
	"strings"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeNickname trims surrounding whitespace; nicknames keep their case.
func NormalizeNickname(s string) string {
	return strings.TrimSpace(s)
}

// MaxEmailLength bounds accepted addresses (RFC 5321 path limit).
const MaxEmailLength = 320

// ValidEmail reports whether s is a bare address of the form local@domain.tld.
func ValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
