package vidstab

import (
	"errors"
	"fmt"

	"github.com/opd-ai/vidstab/video"
)

// Sentinel errors for stabilization jobs.
// These errors enable reliable error classification using errors.Is().

// Pipeline errors.
var (
	// ErrDecode indicates the input could not be opened or decoded.
	// Details are available as *video.DecodeError.
	ErrDecode = video.ErrDecode

	// ErrEncode indicates the output could not be written.
	// Details are available as *video.EncodeError.
	ErrEncode = video.ErrEncode

	// ErrCancelled indicates the caller cancelled the job. The context
	// error is wrapped alongside it.
	ErrCancelled = errors.New("stabilization cancelled")

	// ErrConfiguration indicates invalid options.
	// Details are available as *ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
)

// Job lifecycle errors.
var (
	// ErrInvalidTransition indicates an invalid job state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrJobNotFinished indicates the job has not reached a terminal state.
	ErrJobNotFinished = errors.New("job has not finished")
)

// ConfigurationError describes an invalid option value.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
