// Package limits provides centralized size limits for frames and pipeline
// parameters. Sources, sinks and option validation all check against the
// same bounds so a malformed header cannot make a stage allocate without
// limit.
//
// # Limit Hierarchy
//
//   - MinFrameDimension / MaxFrameDimension bound each frame side.
//   - MaxFramePixels bounds width*height (8K UHD).
//   - MaxSmoothingRadius bounds the smoothing window on each side.
//   - MaxQueueSize and MaxWorkers bound pipeline buffering.
//
// Validation functions wrap the sentinel errors with the offending values:
//
//	if err := limits.ValidateFrameSize(w, h); err != nil {
//	    if errors.Is(err, limits.ErrFrameTooLarge) {
//	        // reject the stream
//	    }
//	}
package limits

import (
	"errors"
	"fmt"
)

const (
	// MinFrameDimension is the smallest accepted frame side in pixels.
	MinFrameDimension = 1

	// MaxFrameDimension is the largest accepted frame side in pixels.
	MaxFrameDimension = 16384

	// MaxFramePixels is the largest accepted frame area (7680x4320).
	MaxFramePixels = 7680 * 4320

	// MaxSmoothingRadius is the largest smoothing radius in frames per side.
	// A radius beyond this is larger than any realistic clip at 60 fps.
	MaxSmoothingRadius = 10000

	// MaxQueueSize is the largest per-stage queue capacity in frames.
	MaxQueueSize = 256

	// MaxWorkers is the largest number of concurrent warp workers.
	MaxWorkers = 256

	// MaxHeaderLength is the longest accepted Y4M stream or frame header line.
	MaxHeaderLength = 4096
)

var (
	// ErrFrameEmpty indicates a frame with a zero or negative dimension.
	ErrFrameEmpty = errors.New("empty frame")

	// ErrFrameTooLarge indicates a frame exceeding the dimension limits.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrOutOfRange indicates a parameter outside its accepted range.
	ErrOutOfRange = errors.New("value out of range")
)

// ValidateFrameSize validates frame dimensions against the frame limits.
// Returns an error with context including the actual and maximum sizes.
func ValidateFrameSize(width, height int) error {
	if width < MinFrameDimension || height < MinFrameDimension {
		return fmt.Errorf("%w: %dx%d", ErrFrameEmpty, width, height)
	}
	if width > MaxFrameDimension || height > MaxFrameDimension {
		return fmt.Errorf("%w: %dx%d exceeds side limit %d", ErrFrameTooLarge, width, height, MaxFrameDimension)
	}
	if width*height > MaxFramePixels {
		return fmt.Errorf("%w: %d pixels exceeds limit %d", ErrFrameTooLarge, width*height, MaxFramePixels)
	}
	return nil
}

// ValidateRange checks lo <= v <= hi for a named integer parameter.
func ValidateRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s=%d not in [%d, %d]", ErrOutOfRange, name, v, lo, hi)
	}
	return nil
}
