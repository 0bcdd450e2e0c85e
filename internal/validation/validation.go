// Package validation checks user-supplied input before it reaches the ledgers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"atrium/internal/models"
)

var (
	e164Regex   = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	otpRegex    = regexp.MustCompile(`^[0-9]{6}$`)
	phoneStrip  = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	pmNameRegex = regexp.MustCompile(`^[\pL\pN][\pL\pN ._'-]{0,118}[\pL\pN.]$|^[\pL\pN]$`)
)

// NormalizePhone strips common separators and validates the result as E.164.
func NormalizePhone(raw string) (string, error) {
	phone := phoneStrip.Replace(strings.TrimSpace(raw))
	if phone == "" {
		return "", fmt.Errorf("phone is required")
	}
	if !e164Regex.MatchString(phone) {
		return "", fmt.Errorf("phone must be in E.164 format, e.g. +15550001234")
	}
	return phone, nil
}

// ValidateOTP checks that code is exactly six digits.
func ValidateOTP(code string) error {
	if !otpRegex.MatchString(code) {
		return fmt.Errorf("otp must be 6 digits")
	}
	return nil
}

// ValidateDescription bounds the free-text description of an access request.
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > models.MaxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", models.MaxDescriptionLength)
	}
	return nil
}

// ValidatePMName validates a reviewer name.
func ValidatePMName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("pm_name is required")
	}
	if !pmNameRegex.MatchString(name) {
		return fmt.Errorf("pm_name must be 1-120 letters, digits, spaces or . _ ' -")
	}
	return nil
}

// MaskPhone keeps only the last four digits, for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
