// Package barcode implements the structured part identity LLL-L-DDDD: three
// letters of the parent department, one letter of the child department and
// a four digit serial.
package barcode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rl1809/shipstore/internal/core/domain"
)

// MaxSerial is the largest serial that still fits the four digit field.
const MaxSerial = 9999

var pattern = regexp.MustCompile(`^[A-Z]{3}-[A-Z]-[0-9]{4}$`)

// Clean strips the characters a scanner or keyboard adds around a code:
// whitespace, control characters and typographic dashes. Letters are
// upper-cased.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r), unicode.IsControl(r):
			continue
		case r == '‐', r == '‑', r == '‒', r == '–', r == '—', r == '−':
			b.WriteByte('-')
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Validate cleans raw and checks it against the fixed pattern. The cleaned
// code is returned only on success; callers must not persist anything on
// failure.
func Validate(raw string) (string, error) {
	code := Clean(raw)
	if !pattern.MatchString(code) {
		return "", &domain.ValidationError{
			Field:  "barcode",
			Reason: fmt.Sprintf("invalid barcode format %q, expected 3 letters - 1 letter - 4 digits (ABC-D-1234)", raw),
		}
	}
	return code, nil
}

// Prefix returns the LLL-L part of a code for the given department names.
func Prefix(parentName, childName string) string {
	return Initials(parentName, 3) + "-" + Initials(childName, 1)
}

// Generate derives the code following lastSerial. Department names must
// already be validated; short names yield a code that fails Validate.
func Generate(parentName, childName string, lastSerial int) string {
	return fmt.Sprintf("%s-%04d", Prefix(parentName, childName), lastSerial+1)
}

// Serial extracts the numeric serial of a well-formed code.
func Serial(code string) (int, bool) {
	if !pattern.MatchString(code) {
		return 0, false
	}
	n, err := strconv.Atoi(code[len(code)-4:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Initials returns the first n ASCII letters of name, upper-cased, or fewer
// when the name runs out.
func Initials(name string, n int) string {
	var b strings.Builder
	for _, r := range name {
		if b.Len() == n {
			break
		}
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
