package organizer

import (
	"errors"
	"fmt"

	"github.com/mantonx/shoebox/internal/database"
)

// GuardDenied reports a transition whose guard did not pass. This is an
// expected, non-fatal outcome; the item is left untouched and Reason is
// suitable for direct display.
type GuardDenied struct {
	To     database.StorageState
	Reason string
}

func (e *GuardDenied) Error() string {
	return fmt.Sprintf("transition to %s denied: %s", e.To, e.Reason)
}

// IsGuardDenied reports whether err is a guard denial.
func IsGuardDenied(err error) bool {
	var gd *GuardDenied
	return errors.As(err, &gd)
}

// PrerequisiteError reports a transition whose target identity is
// missing or invalid. It aborts the transition before any side effect.
type PrerequisiteError struct {
	To     database.StorageState
	Reason string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("transition to %s rejected: %s", e.To, e.Reason)
}

// IsPrerequisite reports whether err is a prerequisite violation.
func IsPrerequisite(err error) bool {
	var pe *PrerequisiteError
	return errors.As(err, &pe)
}

// MoveError reports a failed physical move. The surrounding persistence
// operation must not commit when one of these is returned.
type MoveError struct {
	From string
	To   string
	Err  error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("failed to move %s to %s: %v", e.From, e.To, e.Err)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}
