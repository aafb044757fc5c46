package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var canonicalPhonePattern = regexp.MustCompile(`^\+7\d{10}$`)

// NormalizePhone converts a Russian phone number typed in any common format
// (8 900 123-45-67, +7 (900) 1234567, 9001234567) to +7XXXXXXXXXX.
func NormalizePhone(input string) (string, error) {
	digits := digitsOnly(input)

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "+7" + digits[1:], nil
	case len(digits) == 11 && digits[0] == '7':
		return "+" + digits, nil
	case len(digits) == 10:
		return "+7" + digits, nil
	}

	return "", &Error{
		Message: fmt.Sprintf("Некорректный формат телефона: %s", input),
		err:     ErrInvalidPhoneFormat,
	}
}

// IsCanonicalPhone reports whether value is already in +7XXXXXXXXXX form.
func IsCanonicalPhone(value string) bool {
	return canonicalPhonePattern.MatchString(value)
}

func digitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
