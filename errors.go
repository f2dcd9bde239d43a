package framegrab

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDimensionOutOfRange = errors.New("dimension out of range")
	ErrBlankingTooLow      = errors.New("blanking below documented minimum")
	ErrFrameTooLarge       = errors.New("frame exceeds addressable frame length")
	ErrLengthMismatch      = errors.New("length mismatch")
	ErrSequence            = errors.New("operation not legal in current state")
	ErrOutOfRange          = errors.New("access out of range")
	ErrWindowOverrun       = errors.New("window overrun")
	ErrTimeout             = errors.New("timeout waiting for capture")
	ErrVerify              = errors.New("read-back verification failed")
)

// ConfigError reports an invalid sensor geometry, blanking or capture length.
// Kind is one of ErrDimensionOutOfRange, ErrBlankingTooLow, ErrFrameTooLarge
// or ErrLengthMismatch.
type ConfigError struct {
	Kind   error
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Kind, e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.Kind
}

// SequenceError reports an operation invoked from a state that does not allow it.
type SequenceError struct {
	Component string
	Op        string
	State     fmt.Stringer
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s: %s not legal in state %s", e.Component, e.Op, e.State)
}

func (e *SequenceError) Unwrap() error {
	return ErrSequence
}

type OutOfRangeError struct {
	Offset uint32
	Length uint32
	Span   uint32
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("access of %d bytes at offset 0x%08X exceeds span 0x%08X", e.Length, e.Offset, e.Span)
}

func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}

// WindowOverrunError reports which frame of an extraction would have read
// past the end of the window.
type WindowOverrunError struct {
	Frame  int
	Offset uint32
	Length uint32
	Span   uint32
}

func (e *WindowOverrunError) Error() string {
	return fmt.Sprintf("window overrun at frame %d: 0x%08X+0x%X exceeds span 0x%08X", e.Frame, e.Offset, e.Length, e.Span)
}

func (e *WindowOverrunError) Unwrap() error {
	return ErrWindowOverrun
}

type TimeoutError struct {
	Level   int
	Want    int
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: status level %d of %d", e.Elapsed, e.Level, e.Want)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
