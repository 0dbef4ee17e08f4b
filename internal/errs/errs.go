// Package errs classifies the errors the testbench commands can hit so each
// class gets its own process exit code.
package errs

import "errors"

// Code is an error class.
type Code string

const (
	InvalidArgument    Code = "invalid_argument"    // bad flags, config, names or image data
	NotFound           Code = "not_found"           // missing file, reference or element
	FailedPrecondition Code = "failed_precondition" // wrong key, element off screen
	Unavailable        Code = "unavailable"         // browser, S3 or screenshot source down
	Internal           Code = "internal"
)

// ExitMismatch is the process exit code for a screenshot that does not
// match its reference. Coded errors never map to it.
const ExitMismatch = 1

var exitCodes = map[Code]int{
	InvalidArgument:    2,
	NotFound:           3,
	FailedPrecondition: 4,
	Unavailable:        5,
	Internal:           6,
}

// Error is a coded error. Message is shown to the user; Err keeps the cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the code of the outermost coded error in err's chain,
// defaulting to Internal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ExitCode maps an error to a process exit code. nil maps to 0, unknown
// codes and uncoded errors to the Internal code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if c, ok := exitCodes[CodeOf(err)]; ok {
		return c
	}
	return exitCodes[Internal]
}
