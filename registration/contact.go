package registration

import "strings"

type Contact struct {
	FullName   string
	Email      string
	Phone      string
	Motivation string
}

type ExperienceLevel string

const (
	BEGINNER     ExperienceLevel = "Beginner"
	INTERMEDIATE ExperienceLevel = "Intermediate"
	ADVANCED     ExperienceLevel = "Advanced"
)

func (e ExperienceLevel) Valid() bool {
	switch e {
	case BEGINNER, INTERMEDIATE, ADVANCED:
		return true
	}
	return false
}

// SplitName splits a full name into the first and last name fields the payment page shows.
// Everything after the first word is treated as the last name.
func SplitName(fullName string) (string, string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
