package ups

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned by a poll when the device source could
	// not be reached at all. The previous snapshot stays current.
	ErrSourceUnavailable = errors.New("device source unavailable")

	// ErrDeviceNotFound means no device with the requested id exists in the
	// current snapshot.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrVariableNotFound means the device exists but lacks the variable.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrMalformedRawVariable marks a raw variable that could not be coerced
	// even to a string. The variable is dropped; the device is kept.
	ErrMalformedRawVariable = errors.New("malformed raw variable")

	// ErrNoSnapshotYet is returned by lookups before the first poll completes.
	ErrNoSnapshotYet = errors.New("no snapshot yet")
)

// LookupError describes a failed device or variable lookup. It unwraps to
// ErrDeviceNotFound or ErrVariableNotFound.
type LookupError struct {
	Device   string
	Variable string
	Err      error
}

func (e *LookupError) Error() string {
	if errors.Is(e.Err, ErrVariableNotFound) {
		return fmt.Sprintf("device %q: variable %q: %v", e.Device, e.Variable, e.Err)
	}
	return fmt.Sprintf("device %q: %v", e.Device, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
