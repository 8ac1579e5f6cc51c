package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrLocationEmpty is returned when the location is empty after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooShort is returned when the location is under the minimum length.
var ErrLocationTooShort = errors.New("location too short")

// ErrLocationTooLong is returned when the location exceeds the maximum length.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when the location contains characters
// outside the allowed set.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ValidateLocation trims the input and checks it against the shapes the
// upstream provider resolves: zipcodes, city names, "city,state". Allowed
// characters are Unicode letters, digits, space, comma, and hyphen; length
// bounds are in runes. Returns the trimmed value; lowercasing for cache keys
// is the service layer's job.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	loc := strings.TrimSpace(input)
	if loc == "" {
		return "", ErrLocationEmpty
	}

	n := utf8.RuneCountInString(loc)
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}

	for _, r := range loc {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
		case r == ' ' || r == ',' || r == '-':
		default:
			return "", ErrLocationInvalidChars
		}
	}
	return loc, nil
}
