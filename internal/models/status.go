package models

// RequirementStatus is the workflow state of a requirement.
type RequirementStatus string

const (
	RequirementStatusTodo       RequirementStatus = "todo"
	RequirementStatusInProgress RequirementStatus = "in_progress"
	RequirementStatusDone       RequirementStatus = "done"
)

// requirementTransitions lists the legal successors of each status.
var requirementTransitions = map[RequirementStatus][]RequirementStatus{
	RequirementStatusTodo:       {RequirementStatusInProgress},
	RequirementStatusInProgress: {RequirementStatusTodo, RequirementStatusDone},
	RequirementStatusDone:       {},
}

// ParseRequirementStatus converts a string to a known RequirementStatus.
func ParseRequirementStatus(s string) (RequirementStatus, error) {
	st := RequirementStatus(s)
	if _, ok := requirementTransitions[st]; !ok {
		return "", ErrInvalidStatus.Errorf("unknown requirement status %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s RequirementStatus) CanTransitionTo(next RequirementStatus) bool {
	for _, allowed := range requirementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ChangeStatus returns next when the move from s is legal.
func (s RequirementStatus) ChangeStatus(next RequirementStatus) (RequirementStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, ErrInvalidStatusTransition.Errorf("cannot move requirement from %s to %s", s, next)
	}
	return next, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RequirementStatus) UnmarshalText(b []byte) error {
	v, err := ParseRequirementStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusClosed   ProjectStatus = "closed"
	ProjectStatusArchived ProjectStatus = "archived"
)

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusActive:   {ProjectStatusClosed, ProjectStatusArchived},
	ProjectStatusClosed:   {ProjectStatusActive, ProjectStatusArchived},
	ProjectStatusArchived: {ProjectStatusActive},
}

// ParseProjectStatus converts a string to a known ProjectStatus.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	st := ProjectStatus(s)
	if _, ok := projectTransitions[st]; !ok {
		return "", ErrInvalidStatus.Errorf("unknown project status %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	for _, allowed := range projectTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ChangeStatus returns next when the move from s is legal.
func (s ProjectStatus) ChangeStatus(next ProjectStatus) (ProjectStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, ErrInvalidStatusTransition.Errorf("cannot move project from %s to %s", s, next)
	}
	return next, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ProjectStatus) UnmarshalText(b []byte) error {
	v, err := ParseProjectStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
