package video

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Source decodes a video into a lazy, finite, forward-only sequence of
// frames in timestamp order.
type Source interface {
	// Info describes the stream. It is valid as soon as the source is open.
	Info() StreamInfo
	// Next returns the next frame, or io.EOF after the last frame. A decode
	// failure returns a *DecodeError and ends the sequence.
	Next(ctx context.Context) (*Frame, error)
	// Close releases the decoder.
	Close() error
}

// SourceOpener opens a source for a path. The orchestrator opens the input
// once per pass.
type SourceOpener func(path string) (Source, error)

// IsY4M reports whether the path names a YUV4MPEG2 file.
func IsY4M(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".y4m")
}

// OpenSource opens path with the native Y4M decoder when the extension is
// .y4m and with ffmpeg otherwise.
func OpenSource(path string) (Source, error) {
	logrus.WithFields(logrus.Fields{
		"function": "OpenSource",
		"path":     path,
		"y4m":      IsY4M(path),
	}).Debug("Opening video source")

	if IsY4M(path) {
		return OpenY4M(path)
	}
	return OpenFFmpeg(path)
}
