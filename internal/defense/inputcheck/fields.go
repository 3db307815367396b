package inputcheck

import (
	"math"
	"regexp"
	"strings"
)

const maxEmailLength = 254

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	uuidPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	phoneStrip   = regexp.MustCompile(`[\s\-().]`)
)

// ValidateEmail accepts a simple x@y.z shape up to 254 characters.
func ValidateEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// ValidatePhone accepts US numbers: ten digits, optionally prefixed with a
// country code and punctuated with spaces, dashes, dots or parentheses.
func ValidatePhone(phone string) bool {
	cleaned := phoneStrip.ReplaceAllString(phone, "")
	cleaned = strings.TrimPrefix(cleaned, "+")
	if len(cleaned) == 11 && cleaned[0] == '1' {
		cleaned = cleaned[1:]
	}
	if len(cleaned) != 10 {
		return false
	}
	for _, c := range cleaned {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ValidateUUID accepts the canonical 8-4-4-4-12 hex form.
func ValidateUUID(id string) bool {
	return uuidPattern.MatchString(id)
}

// ValidateAmount accepts a finite amount between 0 and 100000 inclusive.
func ValidateAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount >= 0 && amount <= 100000
}

var quoteEscaper = strings.NewReplacer(`"`, "&quot;", "'", "&#39;")

// SanitizeText strips angle brackets, escapes quotes to HTML entities and
// trims surrounding whitespace.  Meant for free-text fields headed for
// storage or display, not as a substitute for validation.
func SanitizeText(s string) string {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = quoteEscaper.Replace(s)
	return strings.TrimSpace(s)
}
