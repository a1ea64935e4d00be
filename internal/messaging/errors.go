package messaging

import (
	"errors"
	"fmt"

	"messaging-service/internal/repositories"
)

// Reason codes carried in error events.
const (
	CodeAuthentication = "authentication_error"
	CodeNotFound       = "not_found"
	CodeForbidden      = "forbidden"
	CodeValidation     = "validation_error"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

var ErrValidation = errors.New("validation failed")

// CommandError is a failure reported back to the issuing connection.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Message
}

// Is lets validation failures match ErrValidation.
func (e *CommandError) Is(target error) bool {
	return target == ErrValidation && e.Code == CodeValidation
}

func validationError(format string, args ...any) error {
	return &CommandError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

var (
	errForbidden = &CommandError{Code: CodeForbidden, Message: "not a participant of this conversation"}
	errNotFound  = &CommandError{Code: CodeNotFound, Message: "conversation not found"}
)

// classify maps store and command errors to a reason code. The bool is false
// for unexpected errors that should be logged.
func classify(err error) (*CommandError, bool) {
	var ce *CommandError
	switch {
	case errors.As(err, &ce):
		return ce, true
	case errors.Is(err, repositories.ErrConversationNotFound):
		return errNotFound, true
	case errors.Is(err, repositories.ErrNotParticipant):
		return errForbidden, true
	case errors.Is(err, repositories.ErrInvalidParticipants):
		return &CommandError{Code: CodeValidation, Message: "invalid participants"}, true
	default:
		return &CommandError{Code: CodeInternal, Message: "internal error"}, false
	}
}
