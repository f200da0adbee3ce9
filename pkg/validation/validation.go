package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// SessionIDRegex validates session ID format
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateParticipantID validates participant ID
func ValidateParticipantID(id string) error {
	if id == "" {
		return fmt.Errorf("participant id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("participant id is too long (max 128 characters)")
	}
	if !ParticipantIDRegex.MatchString(id) {
		return fmt.Errorf("participant id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateSessionID validates session ID
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("session id is too long (max 128 characters)")
	}
	if !SessionIDRegex.MatchString(id) {
		return fmt.Errorf("session id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateDisplayName validates a participant display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	return nil
}

// ValidatePosition validates normalized plane coordinates
func ValidatePosition(x, y float64) error {
	if x < 0 || x > 100 {
		return fmt.Errorf("x must be within [0,100]")
	}
	if y < 0 || y > 100 {
		return fmt.Errorf("y must be within [0,100]")
	}
	return nil
}

// ValidateRadius validates a proximity radius against configured bounds
func ValidateRadius(radius, min, max float64) error {
	if radius < min || radius > max {
		return fmt.Errorf("radius must be within [%g,%g]", min, max)
	}
	return nil
}
