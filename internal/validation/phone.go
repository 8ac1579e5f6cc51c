package validation

import (
	"errors"
	"strings"
)

// ErrPhoneEmpty is returned when the phone number is empty after trim.
var ErrPhoneEmpty = errors.New("phone number is required")

// ErrPhoneInvalid is returned when the phone number is not in E.164 form.
var ErrPhoneInvalid = errors.New("phone number must be in E.164 format")

// ValidatePhone normalizes and validates an E.164 phone number. Separator
// characters (spaces, hyphens, dots, parentheses) are stripped; the result
// must be '+' followed by 8 to 15 digits with a nonzero leading digit.
// Returns the normalized number, e.g. "+12125551234".
func ValidatePhone(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrPhoneEmpty
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator, drop
		default:
			return "", ErrPhoneInvalid
		}
	}

	normalized := b.String()
	if !strings.HasPrefix(normalized, "+") {
		return "", ErrPhoneInvalid
	}
	digits := normalized[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrPhoneInvalid
	}
	if digits[0] == '0' {
		return "", ErrPhoneInvalid
	}
	return normalized, nil
}
