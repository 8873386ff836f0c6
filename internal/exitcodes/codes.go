package exitcodes

import (
	"errors"
	"fmt"
	"os"
)

// Standard exit codes for helium-updater
const (
	// Success indicates successful command completion
	Success = 0

	// GeneralError indicates a general/unknown error
	GeneralError = 1

	// InvalidArgs indicates invalid command-line arguments or flags
	InvalidArgs = 2

	// PreconditionFailed indicates a precondition was not met
	// (e.g., missing version manifest, nothing downloaded to install)
	PreconditionFailed = 3

	// NetworkError indicates the release catalog or asset host could
	// not be reached
	NetworkError = 4

	// InstallError indicates the installer ran and reported failure
	InstallError = 5

	// ValidationError indicates a downloaded file failed checksum or
	// signature verification
	ValidationError = 6

	// UpdatePending is used by "check --strict" when a newer version
	// exists, so scripts can branch on the result
	UpdatePending = 10
)

// Exit terminates the program with the given code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError prints error message to stderr and exits with the given code
func ExitWithError(code int, msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}

// CodeForError returns the appropriate exit code for an error.
// Unwraps ErrorWithCode for explicit codes, otherwise returns GeneralError.
func CodeForError(err error) int {
	if err == nil {
		return Success
	}
	var ec *ErrorWithCode
	if errors.As(err, &ec) {
		return ec.Code
	}
	return GeneralError
}
