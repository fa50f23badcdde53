package scoring

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown                Code = "UNKNOWN"
	CodeValidation             Code = "VALIDATION"
	CodeOutOfRange             Code = "SCORE_OUT_OF_RANGE"
	CodeScoreLocked            Code = "SCORE_LOCKED"
	CodeNotOwner               Code = "NOT_OWNER"
	CodeAlreadySigned          Code = "ALREADY_SIGNED"
	CodeIncompletePrerequisite Code = "INCOMPLETE_PREREQUISITE"
	CodeDuplicateRequest       Code = "DUPLICATE_REQUEST"
	CodeInvalidRole            Code = "INVALID_ROLE"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeRequestClosed          Code = "REQUEST_CLOSED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - malformed or out of range input
	case CodeValidation, CodeOutOfRange, CodeInvalidRole:
		return http.StatusBadRequest

	case CodePermissionDenied, CodeNotOwner:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	// Conflict - current state forbids the change
	case CodeScoreLocked, CodeAlreadySigned, CodeDuplicateRequest, CodeRequestClosed:
		return http.StatusConflict

	case CodeIncompletePrerequisite:
		return http.StatusPreconditionFailed

	default:
		return http.StatusInternalServerError
	}
}

// Error is a per-request domain failure. Details carries structured context
// for the caller, such as the missing items of an incomplete prerequisite.
type Error struct {
	Code    Code
	Message string
	Details any
}

func newError(code Code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches on code, so errors.Is(err, ErrScoreLocked) works for any
// SCORE_LOCKED error. An out-of-range score is also a validation error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == CodeValidation && e.Code == CodeOutOfRange
}

// Sentinels for errors.Is.
var (
	ErrValidation             = &Error{Code: CodeValidation}
	ErrOutOfRange             = &Error{Code: CodeOutOfRange}
	ErrScoreLocked            = &Error{Code: CodeScoreLocked}
	ErrNotOwner               = &Error{Code: CodeNotOwner}
	ErrAlreadySigned          = &Error{Code: CodeAlreadySigned}
	ErrIncompletePrerequisite = &Error{Code: CodeIncompletePrerequisite}
	ErrDuplicateRequest       = &Error{Code: CodeDuplicateRequest}
	ErrInvalidRole            = &Error{Code: CodeInvalidRole}
	ErrPermissionDenied       = &Error{Code: CodePermissionDenied}
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrRequestClosed          = &Error{Code: CodeRequestClosed}
)

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MissingItem names one unmet prerequisite of a certification.
type MissingItem struct {
	JudgeID      int64  `json:"judgeID,omitempty"`
	ContestantID int64  `json:"contestantID,omitempty"`
	CriterionID  int64  `json:"criterionID,omitempty"`
	Reason       string `json:"reason"`
}

func incomplete(message string, missing []MissingItem) *Error {
	return newError(CodeIncompletePrerequisite, message, map[string]any{"missing": missing})
}

func validation(message string) *Error {
	return newError(CodeValidation, message, nil)
}
