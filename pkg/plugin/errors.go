package plugin

import (
	"errors"
	"fmt"
)

// ErrConfig matches every ConfigError through errors.Is.
var ErrConfig = errors.New("CONFIG_ERROR")

// ConfigError is a fatal startup misconfiguration: a plugin dependency that
// failed, duplicate plugin ids, an unmet SDK version, or a recipe rejecting
// its config.
type ConfigError struct {
	Message string
	Err     error
}

// NewConfigError formats a ConfigError.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "CONFIG_ERROR: " + e.Message + ": " + e.Err.Error()
	}
	return "CONFIG_ERROR: " + e.Message
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }
