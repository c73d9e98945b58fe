package sdk

import (
	"errors"
	"fmt"
)

// ErrPostInitClosed is returned when a post-init callback is added after
// startup finished.
var ErrPostInitClosed = errors.New("sdk: post-init phase already ran")

// GeneralError is an unexpected failure inside the SDK.
type GeneralError struct {
	Message string
	Err     error
}

func (e *GeneralError) Error() string {
	if e.Err != nil {
		return "GENERAL_ERROR: " + e.Message + ": " + e.Err.Error()
	}
	return "GENERAL_ERROR: " + e.Message
}

func (e *GeneralError) Unwrap() error { return e.Err }

// BadInputError means a caller sent data the SDK cannot accept. The
// middleware answers it with 400.
type BadInputError struct {
	Message string
}

// NewBadInputError formats a BadInputError.
func NewBadInputError(format string, args ...any) *BadInputError {
	return &BadInputError{Message: fmt.Sprintf(format, args...)}
}

func (e *BadInputError) Error() string { return "BAD_INPUT_ERROR: " + e.Message }
