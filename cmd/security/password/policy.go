package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks a candidate password against the policy. Length counts runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	}

	if c.Policy.RequireMixed && !mixed(password) {
		return ErrWeakPassword
	}
	if c.Policy.RejectVeryWeak && trivial(password) {
		return ErrWeakPassword
	}
	return nil
}

// mixed reports whether pw has a letter, a digit and a symbol, no whitespace,
// and no rune three times in a row.
func mixed(pw string) bool {
	var letter, digit, symbol bool
	var prev rune
	run := 0
	for _, r := range pw {
		switch {
		case unicode.IsSpace(r):
			return false
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
		if r == prev {
			run++
			if run >= 3 {
				return false
			}
		} else {
			prev, run = r, 1
		}
	}
	return letter && digit && symbol
}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1!": {}, "password123": {}, "p@ssw0rd": {},
	"123456": {}, "123456789": {}, "qwerty": {}, "qwerty123": {},
	"qwerty1!": {}, "11111111": {}, "letmein1!": {},
}

// trivial catches single-character, PIN-like and well-known passwords.
func trivial(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	digits := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
	return digits && utf8.RuneCountInString(s) < 12
}
