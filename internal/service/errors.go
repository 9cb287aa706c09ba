package service

import (
	"errors"
	"fmt"

	"github.com/orastack/taskboard-backend/internal/repository"
)

// Error codes are part of the API contract.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidTransition   = "INVALID_STATUS_TRANSITION"
	CodeAssigneeNotMember   = "ASSIGNEE_NOT_PROJECT_MEMBER"
	CodeDuplicateResource   = "DUPLICATE_RESOURCE"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is a service-layer error carrying an API error code. Handlers map
// codes to HTTP statuses; Details is returned to the client verbatim.
type Error struct {
	Code    string
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func Validation(message string, details interface{}) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

func InvalidTransition(from, to string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition task from %s to %s", from, to),
	}
}

func AssigneeNotMember(userID string) *Error {
	return &Error{
		Code:    CodeAssigneeNotMember,
		Message: fmt.Sprintf("user %s is not an active member of the project", userID),
	}
}

func Duplicate(message string) *Error {
	return &Error{Code: CodeDuplicateResource, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

func Internal(err error) *Error {
	if err != nil {
		return &Error{Code: CodeInternal, Message: "internal server error", Details: nil}
	}
	return &Error{Code: CodeInternal, Message: "internal server error"}
}

// AsError extracts a *Error from err, if it is one.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// fromRepo translates repository errors into the taxonomy. Anything the
// repository layer did not classify becomes INTERNAL_ERROR.
func fromRepo(err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicate):
		return Duplicate("resource already exists")
	case errors.Is(err, repository.ErrInvalidID):
		return Validation("invalid id", nil)
	case errors.Is(err, repository.ErrConflict):
		return Conflict("concurrent modification, retry the request")
	case errors.Is(err, repository.ErrMemberLimit):
		return Validation("project member limit reached", nil)
	default:
		return Internal(err)
	}
}
