package registration

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minFullNameLength   = 3
	maxMotivationLength = 500
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Haitian mobile numbers, optionally prefixed with the 509 country code.
	phonePattern = regexp.MustCompile(`^(\+?509)?[ -]?[234][0-9]{3}[ -]?[0-9]{4}$`)
)

type FieldError struct {
	Field   string
	Message string
}

type SubmitRequest struct {
	FullName    string
	Email       string
	Phone       string
	Motivation  string
	Experience  ExperienceLevel
	PaymentTier PaymentTier
	PromoCode   string
}

func (r SubmitRequest) Contact() Contact {
	return Contact{
		FullName:   strings.TrimSpace(r.FullName),
		Email:      strings.TrimSpace(r.Email),
		Phone:      strings.TrimSpace(r.Phone),
		Motivation: strings.TrimSpace(r.Motivation),
	}
}

// ValidateSubmission checks every field independently so the caller can report them all at once.
func ValidateSubmission(r SubmitRequest) []FieldError {
	var fields []FieldError
	contact := r.Contact()

	if utf8.RuneCountInString(contact.FullName) < minFullNameLength {
		fields = append(fields, FieldError{Field: "fullName", Message: fmt.Sprintf("must be at least %d characters", minFullNameLength)})
	}

	if !emailPattern.MatchString(contact.Email) {
		fields = append(fields, FieldError{Field: "email", Message: "is not a valid email address"})
	}

	if !IsValidPhone(contact.Phone) {
		fields = append(fields, FieldError{Field: "phone", Message: "is not a valid Haitian phone number"})
	}

	if !r.Experience.Valid() {
		fields = append(fields, FieldError{Field: "experienceLevel", Message: "must be one of Beginner, Intermediate, Advanced"})
	}

	if !r.PaymentTier.Valid() {
		fields = append(fields, FieldError{Field: "paymentTier", Message: "must be one of 25, 50, 100"})
	}

	if utf8.RuneCountInString(contact.Motivation) > maxMotivationLength {
		fields = append(fields, FieldError{Field: "motivation", Message: fmt.Sprintf("must be at most %d characters", maxMotivationLength)})
	}

	return fields
}

func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(strings.ReplaceAll(phone, " ", ""))
}
