package reading

import (
	"errors"
	"fmt"
)

// Sentinel errors for reading operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("reading: payload is not a sensor reading object")

	// ErrConstraintViolation is matched by every *ConstraintViolation.
	ErrConstraintViolation = errors.New("reading: constraint violation")

	// ErrNotFound is returned by Store.Get when no row has the requested key.
	ErrNotFound = errors.New("reading: not found")
)

// DecodeError reports a payload that could not be decoded into a Reading.
// Payload is the raw message, kept for diagnostics. Field names the payload
// key whose value had the wrong type; it is empty when the payload as a
// whole is not a JSON object.
type DecodeError struct {
	Payload []byte
	Field   string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: field %s: %v", ErrDecode, e.Field, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) true for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ConstraintViolation reports a reading the store refused: its key already
// exists, or sensor_id/time is empty or missing.
type ConstraintViolation struct {
	Reading Reading
	Err     error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrConstraintViolation, e.Reading, e.Err)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConstraintViolation) true for any ConstraintViolation.
func (e *ConstraintViolation) Is(target error) bool { return target == ErrConstraintViolation }
