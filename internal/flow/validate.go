package flow

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// idNumberPattern matches the 18 character resident ID layout: region
// code, birth date, sequence number and a digit or X check character.
var idNumberPattern = regexp.MustCompile(`^[1-9]\d{5}(19|20)\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])\d{3}[\dXx]$`)

// ValidateLegalName checks a name submitted for verification.
func ValidateLegalName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < 2 {
		return fmt.Errorf("%w: legal name must be at least 2 characters", ErrValidation)
	}
	return nil
}

// ValidateIDNumber checks an 18 character resident ID number. Beyond
// the pattern, the embedded birth date must be a real calendar day.
func ValidateIDNumber(idNumber string) error {
	if !idNumberPattern.MatchString(idNumber) {
		return fmt.Errorf("%w: ID number format is invalid", ErrValidation)
	}
	if _, err := time.Parse("20060102", idNumber[6:14]); err != nil {
		return fmt.Errorf("%w: ID number birth date is invalid", ErrValidation)
	}
	return nil
}

// MaskName hides all but the first character of a name.
func MaskName(name string) string {
	runes := []rune(name)
	if len(runes) <= 1 {
		return name
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}
