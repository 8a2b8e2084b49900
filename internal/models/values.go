// Package models holds the domain model of the requirement tracker: value
// objects, the User, Project and Requirement aggregates, and the errors
// their invariants produce.
//
// Aggregates are values. Every mutator returns a new value and leaves the
// receiver untouched, so an aggregate can be shared across goroutines
// without locking.
package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Length limits for text value objects.
const (
	ProjectTitleMinLength         = 3
	ProjectTitleMaxLength         = 100
	RequirementTitleMinLength     = 2
	RequirementTitleMaxLength     = 100
	RequirementDescriptionMinimum = 5
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email is a syntactically valid, lowercased email address.
type Email struct {
	value string
}

// NewEmail validates and normalizes an email address.
func NewEmail(s string) (Email, error) {
	s = strings.TrimSpace(s)
	if !emailPattern.MatchString(s) {
		return Email{}, ErrInvalidEmail.Errorf("invalid email address %q", s)
	}
	return Email{value: strings.ToLower(s)}, nil
}

// String returns the address.
func (e Email) String() string { return e.value }

// IsZero reports whether e was never constructed.
func (e Email) IsZero() bool { return e.value == "" }

// MarshalText implements encoding.TextMarshaler.
func (e Email) MarshalText() ([]byte, error) { return []byte(e.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Email) UnmarshalText(b []byte) error {
	v, err := NewEmail(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ProjectTitle is a trimmed project title of 3 to 100 characters.
type ProjectTitle struct {
	value string
}

// NewProjectTitle validates a project title.
func NewProjectTitle(s string) (ProjectTitle, error) {
	v, err := boundedText(s, ProjectTitleMinLength, ProjectTitleMaxLength)
	if err != nil {
		return ProjectTitle{}, ErrInvalidTitle.Errorf("project title must be %d-%d characters", ProjectTitleMinLength, ProjectTitleMaxLength)
	}
	return ProjectTitle{value: v}, nil
}

func (t ProjectTitle) String() string { return t.value }

// MarshalText implements encoding.TextMarshaler.
func (t ProjectTitle) MarshalText() ([]byte, error) { return []byte(t.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ProjectTitle) UnmarshalText(b []byte) error {
	v, err := NewProjectTitle(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RequirementTitle is a trimmed requirement title of 2 to 100 characters.
type RequirementTitle struct {
	value string
}

// NewRequirementTitle validates a requirement title.
func NewRequirementTitle(s string) (RequirementTitle, error) {
	v, err := boundedText(s, RequirementTitleMinLength, RequirementTitleMaxLength)
	if err != nil {
		return RequirementTitle{}, ErrInvalidTitle.Errorf("requirement title must be %d-%d characters", RequirementTitleMinLength, RequirementTitleMaxLength)
	}
	return RequirementTitle{value: v}, nil
}

func (t RequirementTitle) String() string { return t.value }

// MarshalText implements encoding.TextMarshaler.
func (t RequirementTitle) MarshalText() ([]byte, error) { return []byte(t.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RequirementTitle) UnmarshalText(b []byte) error {
	v, err := NewRequirementTitle(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RequirementDescription is a trimmed description of at least 5 characters.
type RequirementDescription struct {
	value string
}

// NewRequirementDescription validates a requirement description.
func NewRequirementDescription(s string) (RequirementDescription, error) {
	v := strings.TrimSpace(s)
	if utf8.RuneCountInString(v) < RequirementDescriptionMinimum {
		return RequirementDescription{}, ErrInvalidDescription.Errorf("description must be at least %d characters", RequirementDescriptionMinimum)
	}
	return RequirementDescription{value: v}, nil
}

func (d RequirementDescription) String() string { return d.value }

// MarshalText implements encoding.TextMarshaler.
func (d RequirementDescription) MarshalText() ([]byte, error) { return []byte(d.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *RequirementDescription) UnmarshalText(b []byte) error {
	v, err := NewRequirementDescription(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Priority levels.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// RequirementPriority is a priority level between 1 (high) and 3 (low).
type RequirementPriority struct {
	value int
}

// NewRequirementPriority validates a priority level.
func NewRequirementPriority(v int) (RequirementPriority, error) {
	if v < PriorityHigh || v > PriorityLow {
		return RequirementPriority{}, ErrInvalidPriority.Errorf("priority %d is out of range %d-%d", v, PriorityHigh, PriorityLow)
	}
	return RequirementPriority{value: v}, nil
}

// Value returns the numeric level.
func (p RequirementPriority) Value() int { return p.value }

// MarshalJSON encodes the priority as a number.
func (p RequirementPriority) MarshalJSON() ([]byte, error) { return json.Marshal(p.value) }

// UnmarshalJSON decodes and validates a numeric priority.
func (p *RequirementPriority) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := NewRequirementPriority(n)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func boundedText(s string, minLen, maxLen int) (string, error) {
	v := strings.TrimSpace(s)
	n := utf8.RuneCountInString(v)
	if n < minLen || n > maxLen {
		return "", ErrInvalidTitle
	}
	return v, nil
}
