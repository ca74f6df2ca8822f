package video

import (
	"errors"
	"fmt"
)

// Sentinel errors for source and sink operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrDecode indicates the input could not be opened or a frame failed
	// to decode.
	ErrDecode = errors.New("decode failed")

	// ErrEncode indicates the output could not be created or a frame failed
	// to encode.
	ErrEncode = errors.New("encode failed")

	// ErrSinkClosed indicates a write after Commit or Abort.
	ErrSinkClosed = errors.New("sink already closed")
)

// DecodeError carries the path and frame index of a decode failure.
// Frame is -1 when the failure is not tied to a frame (open, header).
type DecodeError struct {
	Path  string
	Frame int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("decode %s: frame %d: %v", e.Path, e.Frame, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// EncodeError carries the path and frame index of an encode failure.
// Frame is -1 when the failure is not tied to a frame (create, commit).
type EncodeError struct {
	Path  string
	Frame int
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("encode %s: frame %d: %v", e.Path, e.Frame, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EncodeError) Unwrap() error { return e.Err }

// Is matches ErrEncode.
func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

func decodeErr(path string, frame int, format string, args ...interface{}) error {
	return &DecodeError{Path: path, Frame: frame, Err: fmt.Errorf(format, args...)}
}

func encodeErr(path string, frame int, format string, args ...interface{}) error {
	return &EncodeError{Path: path, Frame: frame, Err: fmt.Errorf(format, args...)}
}
