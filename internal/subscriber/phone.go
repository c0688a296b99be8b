package subscriber

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	phoneDigitsRe = regexp.MustCompile(`\d`)
	e164USRe      = regexp.MustCompile(`^\+1\d{10}$`)
)

// NormalizePhone canonicalizes a US phone number to +1XXXXXXXXXX. Accepts
// bare 10-digit numbers, 11-digit numbers with a leading 1, and any
// punctuation in between. Returns ErrInvalidPhone for everything else.
func NormalizePhone(value string) (string, error) {
	digits := strings.Join(phoneDigitsRe.FindAllString(strings.TrimSpace(value), -1), "")
	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	default:
		return "", ErrInvalidPhone
	}
}

// ValidPhone reports whether the value is already in canonical form.
func ValidPhone(value string) bool {
	return e164USRe.MatchString(value)
}

// FormatPhone renders a canonical +1XXXXXXXXXX number as (XXX) XXX-XXXX for
// operator-facing text. Non-canonical values pass through unchanged.
func FormatPhone(value string) string {
	if !ValidPhone(value) {
		return value
	}
	d := value[2:]
	return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:])
}
