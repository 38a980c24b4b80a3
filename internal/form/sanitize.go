// internal/form/sanitize.go
//
// Concierge forms: field sanitizers and format checks.
//
// Context
//   Every string that reaches a FormDef passes through Sanitize before any
//   rule looks at it.  The format checks below are pure and never return
//   errors; callers turn a false result into an ErrorField.
//
//   •  Sanitize           – strip tag-like markup, trim, bound the length.
//   •  IsValidEmail       – local@domain.tld shape, 255 characters max.
//   •  IsValidPhone       – digits, space, parentheses, hyphen, plus, period.
//   •  IsValidPostalCode  – alphanumerics, space, hyphen.
//
//------------------------------------------------------------------------------

package form

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLength = 255
	maxPhoneLength = 30
)

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern  = regexp.MustCompile(`^[\d\s()\-+.]*$`)
	postalPattern = regexp.MustCompile(`^[\dA-Za-z\s\-]*$`)
)

// Sanitize trims value, removes <...> markup, and truncates the result to
// maxLength runes.  The output never starts or ends with whitespace, so
// Sanitize(Sanitize(x, n), n) == Sanitize(x, n).
func Sanitize(value string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	s := clean(value)
	if utf8.RuneCountInString(s) > maxLength {
		s = strings.TrimSpace(string([]rune(s)[:maxLength]))
	}
	return s
}

// clean is Sanitize without the length bound.  Format checks run on this
// form so an overlong value is rejected instead of silently shortened.
func clean(value string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(value, ""))
}

// IsValidEmail reports whether value looks like local@domain.tld.
func IsValidEmail(value string) bool {
	v := strings.TrimSpace(value)
	return utf8.RuneCountInString(v) <= maxEmailLength && emailPattern.MatchString(v)
}

// IsValidPhone reports whether value is empty or a plausible phone number.
func IsValidPhone(value string) bool {
	if value == "" {
		return true
	}
	return utf8.RuneCountInString(value) <= maxPhoneLength && phonePattern.MatchString(value)
}

// IsValidPostalCode reports whether value is empty or an alphanumeric postal
// code no longer than maxLength runes.
func IsValidPostalCode(value string, maxLength int) bool {
	if value == "" {
		return true
	}
	return utf8.RuneCountInString(value) <= maxLength && postalPattern.MatchString(value)
}
