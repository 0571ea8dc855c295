package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNotFound indicates the requested resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"
	// ErrorTypeInvalidInput indicates invalid input parameters
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"
	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"
	// ErrorTypeIO indicates a failed file-system operation (create, open,
	// write, fsync, read, truncate)
	ErrorTypeIO ErrorType = "IO"
	// ErrorTypeCorruption indicates a log record that could not be decoded
	ErrorTypeCorruption ErrorType = "CORRUPTION"
	// ErrorTypeSerialization indicates a well-formed value could not be encoded
	ErrorTypeSerialization ErrorType = "SERIALIZATION"
	// ErrorTypeTimeout indicates an operation timed out
	ErrorTypeTimeout ErrorType = "TIMEOUT"
)

// KVError represents a custom error with additional context
type KVError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   string
}

// Error implements the error interface
func (e *KVError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *KVError) Unwrap() error {
	return e.Err
}

// New creates a new KVError
func New(errType ErrorType, message string, err error) *KVError {
	_, file, line, _ := runtime.Caller(1)
	stack := fmt.Sprintf("%s:%d", file, line)

	return &KVError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

// IO wraps a failed file-system call, naming the operation and the path.
func IO(op, path string, err error) *KVError {
	_, file, line, _ := runtime.Caller(1)
	return &KVError{
		Type:    ErrorTypeIO,
		Message: fmt.Sprintf("%s %s", op, path),
		Err:     err,
		Stack:   fmt.Sprintf("%s:%d", file, line),
	}
}

// TypeOf returns the type of the outermost KVError in err's chain, or ""
// when there is none.
func TypeOf(err error) ErrorType {
	var kvErr *KVError
	if stderrors.As(err, &kvErr) {
		return kvErr.Type
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return TypeOf(err) == ErrorTypeInvalidInput
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return TypeOf(err) == ErrorTypeInternal
}

// IsIO checks if the error is a file-system error
func IsIO(err error) bool {
	return TypeOf(err) == ErrorTypeIO
}

// IsCorruption checks if the error describes an undecodable record
func IsCorruption(err error) bool {
	return TypeOf(err) == ErrorTypeCorruption
}

// IsSerialization checks if the error is an encoding failure
func IsSerialization(err error) bool {
	return TypeOf(err) == ErrorTypeSerialization
}

// IsTimeout checks if the error is a timeout error
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// RecoverError recovers from a panic and converts it to a KVError
func RecoverError(r interface{}) error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = v
	case string:
		err = fmt.Errorf("%s", v)
	default:
		err = fmt.Errorf("%v", v)
	}

	return New(ErrorTypeInternal, "recovered from panic", err)
}
