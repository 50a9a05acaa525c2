package cli

import "strconv"

// Process exit codes.
const (
	ExitOK               = 0
	ExitGeneral          = 1
	ExitRetriesExhausted = 3
	ExitInterrupted      = 130
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code int
	Err  error
	// Logged is set when the error was already reported through the logger.
	Logged bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}
