package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidMessagesFormat ErrorCode = "INVALID_MESSAGES_FORMAT"
	ErrorInvalidToxicityLevel  ErrorCode = "INVALID_TOXICITY_LEVEL"
	ErrorConfiguration         ErrorCode = "CONFIGURATION_ERROR"
)

// Client-facing messages for each code.
var errorMessages = map[ErrorCode]string{
	ErrorInvalidMessagesFormat: "Invalid messages format",
	ErrorInvalidToxicityLevel:  "Toxicity level must be between 1-5",
	ErrorConfiguration:         "Server configuration error",
}

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message returns the text shown to the caller for this error.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if msg, ok := errorMessages[e.Code]; ok {
		return msg
	}
	return "Internal server error"
}

// IsValidation reports whether the error is the caller's fault.
func (e *Error) IsValidation() bool {
	return e != nil && (e.Code == ErrorInvalidMessagesFormat || e.Code == ErrorInvalidToxicityLevel)
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
