package orchestrator

import "fmt"

// ValidationError reports input that cannot be translated: an empty table or
// an unsupported language, either as target or as a fill-mode column name.
type ValidationError struct {
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
