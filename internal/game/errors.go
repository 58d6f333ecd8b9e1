package game

import (
    "errors"
    "fmt"
)

// Error categories. Every operation error wraps exactly one of these.
var (
    ErrNotFound     = errors.New("not found")
    ErrValidation   = errors.New("validation failed")
    ErrUnauthorized = errors.New("unauthorized")
    ErrConflict     = errors.New("conflict")
)

var (
    ErrInvalidSession     = fmt.Errorf("%w: session not found", ErrNotFound)
    ErrUnknownParticipant = fmt.Errorf("%w: participant not in session", ErrNotFound)
    ErrInvalidInput       = fmt.Errorf("%w: invalid input", ErrValidation)
    ErrNoParticipants     = fmt.Errorf("%w: not enough participants", ErrValidation)
    ErrNotOwner           = fmt.Errorf("%w: not owner", ErrUnauthorized)
    ErrAlreadyStarted     = fmt.Errorf("%w: session already started", ErrConflict)
    ErrSessionFull        = fmt.Errorf("%w: session full", ErrConflict)
    ErrAlreadyJoined      = fmt.Errorf("%w: participant already joined", ErrConflict)
    ErrNotStarted         = fmt.Errorf("%w: session not started", ErrConflict)
    ErrCodeExhausted      = errors.New("could not allocate session code")
)

// ErrorCode maps an operation error to the code reported to clients.
func ErrorCode(err error) string {
    switch {
    case errors.Is(err, ErrInvalidSession):
        return "session_not_found"
    case errors.Is(err, ErrUnknownParticipant):
        return "participant_not_found"
    case errors.Is(err, ErrUnauthorized):
        return "not_owner"
    case errors.Is(err, ErrConflict):
        return "conflict"
    case errors.Is(err, ErrValidation):
        return "bad_request"
    default:
        return "internal"
    }
}
