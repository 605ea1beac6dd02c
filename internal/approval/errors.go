package approval

import (
	"errors"
	"fmt"
)

// ErrStateChanged matches any StateChangedError via errors.Is.
var ErrStateChanged = errors.New("phase state changed")

// errBlocked aborts a store update without writing when validation fails.
var errBlocked = errors.New("approval blocked")

// StateChangedError reports that the phase or project is not in the state
// the transition requires. It usually means another actor got there first;
// the caller should re-read the project and decide again.
type StateChangedError struct {
	Project  string
	Phase    string
	Expected string
	Actual   string
}

func (e *StateChangedError) Error() string {
	return fmt.Sprintf("project %q phase %q is %s, expected %s; re-read the project and retry",
		e.Project, e.Phase, e.Actual, e.Expected)
}

// Is makes errors.Is(err, ErrStateChanged) true.
func (e *StateChangedError) Is(target error) bool {
	return target == ErrStateChanged
}
