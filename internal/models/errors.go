package models

import (
	"errors"
	"fmt"
)

// ErrorKind separates value-object validation failures from aggregate rule violations.
type ErrorKind int

const (
	// KindValidation marks a value that could not be constructed.
	KindValidation ErrorKind = iota + 1
	// KindRule marks an operation rejected by an aggregate invariant.
	KindRule
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRule:
		return "rule"
	default:
		return "unknown"
	}
}

// Error is a coded domain error. Two errors match under errors.Is when their
// codes are equal, so sentinels can be refined with context via Errorf.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf returns a copy of e with a more specific message.
func (e *Error) Errorf(format string, args ...any) *Error {
	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

func validationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func ruleError(code, message string) *Error {
	return &Error{Kind: KindRule, Code: code, Message: message}
}

// Validation errors.
var (
	ErrInvalidEmail          = validationError("INVALID_EMAIL", "invalid email address")
	ErrInvalidTitle          = validationError("INVALID_TITLE", "invalid title")
	ErrInvalidDescription    = validationError("INVALID_DESCRIPTION", "invalid description")
	ErrInvalidPriority       = validationError("INVALID_PRIORITY", "priority must be between 1 and 3")
	ErrInvalidStatus         = validationError("INVALID_STATUS", "unknown status")
	ErrInvalidPassword       = validationError("INVALID_PASSWORD", "invalid password")
	ErrInvalidTag            = validationError("INVALID_TAG", "tag must not be empty")
	ErrInvalidComment        = validationError("INVALID_COMMENT", "comment content must not be empty")
	ErrInvalidAuthProvider   = validationError("INVALID_AUTH_PROVIDER", "unknown auth provider")
	ErrMalformedInvitation   = validationError("MALFORMED_INVITATION_CODE", "malformed invitation code")
	ErrInvalidProjectRole    = validationError("INVALID_PROJECT_ROLE", "unknown project role")
	ErrInvalidInvitationTime = validationError("INVALID_INVITATION_EXPIRATION", "invitation expiration must be set")
)

// Rule violations.
var (
	ErrInvalidProjectState       = ruleError("INVALID_PROJECT_STATE", "project does not accept this change in its current state")
	ErrDuplicateInvitation       = ruleError("DUPLICATE_INVITATION", "email has already been invited")
	ErrInvalidRole               = ruleError("INVALID_ROLE", "role cannot be granted by invitation")
	ErrInvalidInvitationCode     = ruleError("INVALID_INVITATION_CODE", "invalid invitation code")
	ErrExpiredInvitation         = ruleError("EXPIRED_INVITATION", "invitation has expired")
	ErrAlreadyAcceptedInvitation = ruleError("ALREADY_ACCEPTED_INVITATION", "invitation has already been accepted")
	ErrInvalidInvitationStatus   = ruleError("INVALID_INVITATION_STATUS", "invitation is not pending")
	ErrMemberNotFound            = ruleError("MEMBER_NOT_FOUND", "member not found")
	ErrOwnerRoleChange           = ruleError("OWNER_ROLE_CHANGE", "project owner must remain a manager")
	ErrPermissionDenied          = ruleError("PERMISSION_DENIED", "permission denied")
	ErrDependencyCycle           = ruleError("DEPENDENCY_CYCLE", "dependency would create a cycle")
	ErrDependencyNotFound        = ruleError("DEPENDENCY_NOT_FOUND", "dependency not found")
	ErrCrossProjectDependency    = ruleError("CROSS_PROJECT_DEPENDENCY", "requirements belong to different projects")
	ErrInvalidStatusTransition   = ruleError("INVALID_STATUS_TRANSITION", "invalid status transition")
	ErrCommentEditPermission     = ruleError("COMMENT_EDIT_PERMISSION", "only the author can edit a comment")
	ErrCommentNotFound           = ruleError("COMMENT_NOT_FOUND", "comment not found")
	ErrDuplicateTag              = ruleError("DUPLICATE_TAG", "tag already present")
	ErrTagNotFound               = ruleError("TAG_NOT_FOUND", "tag not found")
	ErrInactiveUser              = ruleError("INACTIVE_USER", "user is inactive")
)

// IsValidation reports whether err is a value-object validation failure.
func IsValidation(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindValidation
}

// IsRuleViolation reports whether err is an aggregate rule violation.
func IsRuleViolation(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindRule
}
