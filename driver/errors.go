package driver

import (
	"fmt"

	"github.com/syssam/objectcore"
)

// Error is the uniform failure a driver implementation raises (spec §4.3
// "Failure semantics"). Op names the driver-level call that failed
// ("find", "create", ...); Category classifies the failure so
// objectcore.FromDriverError can map it onto the engine's error taxonomy
// without knowing which back-end produced it.
type Error struct {
	Category objectcore.DriverErrorCategory
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("driver: %s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified driver *Error.
func NewError(category objectcore.DriverErrorCategory, op string, err error) *Error {
	return &Error{Category: category, Op: op, Err: err}
}

// ToEngineError classifies err (a driver.*Error or a plain error, treated as
// DriverErrOther) into the engine's uniform *objectcore.Error.
func ToEngineError(err error) *objectcore.Error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*Error); ok {
		return objectcore.FromDriverError(de.Category, de.Err)
	}
	return objectcore.FromDriverError(objectcore.DriverErrOther, err)
}
