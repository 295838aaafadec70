package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSample is wrapped by every SampleError.
	ErrMalformedSample = errors.New("malformed sample")

	// ErrInvalidChannel reports an unusable channel id or channel set.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrInvertedRange reports a date range whose end precedes its start.
	ErrInvertedRange = errors.New("range end precedes start")
)

// SampleError reports a snapshot entry missing a required field.
type SampleError struct {
	Key   string
	Field string
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %q: missing %s", e.Key, e.Field)
}

func (e *SampleError) Unwrap() error {
	return ErrMalformedSample
}
