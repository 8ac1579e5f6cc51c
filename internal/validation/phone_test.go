package validation

import (
	"errors"
	"testing"
)

func TestValidatePhone_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNorm string
	}{
		{"us", "+12125551234", "+12125551234"},
		{"uk", "+442071838750", "+442071838750"},
		{"spaces", "+1 212 555 1234", "+12125551234"},
		{"hyphens", "+1-212-555-1234", "+12125551234"},
		{"parens", "+1 (212) 555-1234", "+12125551234"},
		{"trimmed", "  +12125551234  ", "+12125551234"},
		{"min length", "+12345678", "+12345678"},
		{"max length", "+123456789012345", "+123456789012345"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidatePhone(tc.input)
			if err != nil {
				t.Fatalf("ValidatePhone() err = %v", err)
			}
			if got != tc.wantNorm {
				t.Errorf("normalized = %q, want %q", got, tc.wantNorm)
			}
		})
	}
}

func TestValidatePhone_Empty(t *testing.T) {
	for _, input := range []string{"", "   "} {
		_, err := ValidatePhone(input)
		if !errors.Is(err, ErrPhoneEmpty) {
			t.Errorf("ValidatePhone(%q) err = %v, want ErrPhoneEmpty", input, err)
		}
	}
}

func TestValidatePhone_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no plus", "12125551234"},
		{"plus mid-string", "1+2125551234"},
		{"letters", "+1212call-now"},
		{"too short", "+1234567"},
		{"too long", "+1234567890123456"},
		{"leading zero", "+0212555123"},
		{"only plus", "+"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidatePhone(tc.input)
			if !errors.Is(err, ErrPhoneInvalid) {
				t.Errorf("error = %v, want ErrPhoneInvalid", err)
			}
		})
	}
}
