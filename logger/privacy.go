package logger

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SanitizeText redacts free text such as purchase descriptions, keeping
// only enough to correlate log lines.
func SanitizeText(text string) string {
	if text == "" {
		return "<empty>"
	}
	n := utf8.RuneCountInString(text)
	if n <= 10 {
		return fmt.Sprintf("<%d chars>", n)
	}
	return fmt.Sprintf("%s...<%d chars>", string([]rune(text)[:3]), n)
}

// MaskPhone keeps the last three digits of a phone number.
func MaskPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) <= 3 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-3) + digits[len(digits)-3:]
}
