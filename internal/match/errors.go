package match

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoStateVariable means no triple designates the state variable.
	ErrNoStateVariable = errors.New("no state variable")
	// ErrTooManyStateVariables means more than one distinct variable is
	// designated as the state variable.
	ErrTooManyStateVariables = errors.New("too many state variables")
)

// StateVariableError describes a triple stream whose state designation is
// unusable.
type StateVariableError struct {
	Variables []string
	Err       error
}

func (e *StateVariableError) Error() string {
	if len(e.Variables) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Variables, ", "))
}

func (e *StateVariableError) Unwrap() error { return e.Err }
