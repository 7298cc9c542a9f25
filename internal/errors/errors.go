package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of scheduler-core error.
type ErrorCode string

const (
	// ErrCodeConditionFailed indicates a KV conditional write did not match
	// current state. Never a fault: always a control-flow signal (lost a
	// race for a claim, lease, or deduplication reservation).
	ErrCodeConditionFailed ErrorCode = "condition_failed"
	// ErrCodeTransientStore indicates a KV backend call failed for a reason
	// expected to clear on retry (network blip, backend overload).
	ErrCodeTransientStore ErrorCode = "transient_store"
	// ErrCodeInvalidKey indicates a PK/SK value could not be encoded or
	// decoded according to the key format.
	ErrCodeInvalidKey ErrorCode = "invalid_key"
	// ErrCodePayloadInvalid indicates a job payload failed schema
	// validation for its job type.
	ErrCodePayloadInvalid ErrorCode = "payload_invalid"
	// ErrCodeNoHandler indicates no handler is registered for a job type.
	ErrCodeNoHandler ErrorCode = "no_handler"
	// ErrCodeHandlerError indicates a registered handler returned an error
	// while processing a job.
	ErrCodeHandlerError ErrorCode = "handler_error"
	// ErrCodeConfig indicates invalid or missing configuration.
	ErrCodeConfig ErrorCode = "config_error"
)

// AppError represents a structured scheduler-core error with a code,
// message, and optional cause. It supports error wrapping and unwrapping for
// use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field involved (optional, e.g. payload field name)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ConditionFailed creates a new ConditionFailed error.
func ConditionFailed(message string) *AppError {
	return &AppError{Code: ErrCodeConditionFailed, Message: message}
}

// ConditionFailedf creates a new ConditionFailed error with formatted message.
func ConditionFailedf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConditionFailed, Message: fmt.Sprintf(format, args...)}
}

// TransientStore creates a new TransientStore error.
func TransientStore(message string) *AppError {
	return &AppError{Code: ErrCodeTransientStore, Message: message}
}

// TransientStoref creates a new TransientStore error with formatted message.
func TransientStoref(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeTransientStore, Message: fmt.Sprintf(format, args...)}
}

// InvalidKey creates a new InvalidKey error.
func InvalidKey(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidKey, Message: message}
}

// InvalidKeyf creates a new InvalidKey error with formatted message.
func InvalidKeyf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInvalidKey, Message: fmt.Sprintf(format, args...)}
}

// PayloadInvalid creates a new PayloadInvalid error for a specific field.
func PayloadInvalid(field, message string) *AppError {
	return &AppError{Code: ErrCodePayloadInvalid, Message: message, Field: field}
}

// PayloadInvalidf creates a new PayloadInvalid error with formatted message.
func PayloadInvalidf(field, format string, args ...any) *AppError {
	return &AppError{Code: ErrCodePayloadInvalid, Message: fmt.Sprintf(format, args...), Field: field}
}

// NoHandler creates a new NoHandler error.
func NoHandler(message string) *AppError {
	return &AppError{Code: ErrCodeNoHandler, Message: message}
}

// NoHandlerf creates a new NoHandler error with formatted message.
func NoHandlerf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNoHandler, Message: fmt.Sprintf(format, args...)}
}

// HandlerError creates a new HandlerError wrapping the handler's own error.
func HandlerError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeHandlerError, Message: message, Cause: cause}
}

// Config creates a new Config error.
func Config(message string) *AppError {
	return &AppError{Code: ErrCodeConfig, Message: message}
}

// Configf creates a new Config error with formatted message.
func Configf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConfig, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// MessageTemplate describes a lazily formatted error message used with Wrapf.
type MessageTemplate struct {
	format string
	args   []any
}

// Messagef creates a lazily formatted message template for Wrapf.
func Messagef(format string, args ...any) MessageTemplate {
	return MessageTemplate{format: format, args: args}
}

func (mt MessageTemplate) String() string {
	if len(mt.args) == 0 {
		return mt.format
	}
	return fmt.Sprintf(mt.format, mt.args...)
}

// WrapTemplate wraps an existing error with an AppError using a preconstructed message template.
func WrapTemplate(err error, code ErrorCode, template MessageTemplate) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: template.String(), Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return WrapTemplate(err, code, Messagef(format, args...))
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsConditionFailed reports whether err is a ConditionFailed error.
func IsConditionFailed(err error) bool { return isCode(err, ErrCodeConditionFailed) }

// IsTransientStore reports whether err is a TransientStore error.
func IsTransientStore(err error) bool { return isCode(err, ErrCodeTransientStore) }

// IsInvalidKey reports whether err is an InvalidKey error.
func IsInvalidKey(err error) bool { return isCode(err, ErrCodeInvalidKey) }

// IsPayloadInvalid reports whether err is a PayloadInvalid error.
func IsPayloadInvalid(err error) bool { return isCode(err, ErrCodePayloadInvalid) }

// IsNoHandler reports whether err is a NoHandler error.
func IsNoHandler(err error) bool { return isCode(err, ErrCodeNoHandler) }

// IsHandlerError reports whether err is a HandlerError error.
func IsHandlerError(err error) bool { return isCode(err, ErrCodeHandlerError) }

// IsConfig reports whether err is a Config error.
func IsConfig(err error) bool { return isCode(err, ErrCodeConfig) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
