package wizard

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by wizard operations. The HTTP layer maps these to
// response codes.
var (
	// ErrNotFound means the run or project does not exist or is not owned by
	// the caller. The two cases are indistinguishable on purpose.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a step runner is already in flight for the run.
	ErrConflict = errors.New("a step is already running for this run")

	// ErrInvalidState means the run is not in the phase, step, or status the
	// operation requires.
	ErrInvalidState = errors.New("run is not in a valid state for this operation")

	// ErrInvalidInput means the request payload failed validation beyond what
	// struct tags cover, such as an out-of-range candidate index.
	ErrInvalidInput = errors.New("invalid input")
)

// PrerequisiteError reports which artifacts a step needs that the run has not
// produced yet.
type PrerequisiteError struct {
	Step    string
	Missing []string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("step %s is missing prerequisite artifacts: %s",
		e.Step, strings.Join(e.Missing, ", "))
}
