package video

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Sink encodes frames into an output file.
//
// Frames must be written in strictly increasing index order. Nothing is
// visible at the output path until Commit succeeds; Abort discards all
// written data. After Commit or Abort the sink rejects further writes.
type Sink interface {
	Write(f *Frame) error
	Commit() error
	Abort() error
}

// SinkFactory creates a sink for a path and stream description.
type SinkFactory func(path string, info StreamInfo) (Sink, error)

// CreateSink creates a Y4M sink for .y4m paths and an ffmpeg sink
// otherwise.
func CreateSink(path string, info StreamInfo) (Sink, error) {
	logrus.WithFields(logrus.Fields{
		"function": "CreateSink",
		"path":     path,
		"width":    info.Width,
		"height":   info.Height,
		"y4m":      IsY4M(path),
	}).Debug("Creating video sink")

	if IsY4M(path) {
		return CreateY4M(path, info)
	}
	return CreateFFmpeg(path, info)
}

// partialFile is a temporary file next to the final path. It is renamed
// onto the final path on commit and removed on abort.
type partialFile struct {
	final string
	temp  string
	file  *os.File
}

func createPartial(final string) (*partialFile, error) {
	dir := filepath.Dir(final)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &EncodeError{Path: final, Frame: -1, Err: err}
	}
	if !info.IsDir() {
		return nil, encodeErr(final, -1, "%s is not a directory", dir)
	}
	if fi, err := os.Stat(final); err == nil && fi.IsDir() {
		return nil, encodeErr(final, -1, "output path is a directory")
	}

	base := filepath.Base(final)
	ext := filepath.Ext(base)
	f, err := os.CreateTemp(dir, "."+base+".partial-*"+ext)
	if err != nil {
		return nil, &EncodeError{Path: final, Frame: -1, Err: err}
	}
	return &partialFile{final: final, temp: f.Name(), file: f}, nil
}

// commit syncs, closes and renames the temporary file onto the final path.
func (p *partialFile) commit() error {
	if p.file != nil {
		if err := p.file.Sync(); err != nil {
			p.abort()
			return &EncodeError{Path: p.final, Frame: -1, Err: fmt.Errorf("sync: %w", err)}
		}
		if err := p.file.Close(); err != nil {
			p.file = nil
			p.abort()
			return &EncodeError{Path: p.final, Frame: -1, Err: fmt.Errorf("close: %w", err)}
		}
		p.file = nil
	}
	if err := os.Rename(p.temp, p.final); err != nil {
		p.abort()
		return &EncodeError{Path: p.final, Frame: -1, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}

// abort closes and removes the temporary file.
func (p *partialFile) abort() error {
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
	if err := os.Remove(p.temp); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// orderCheck enforces strictly increasing frame indices and fixed frame
// dimensions.
type orderCheck struct {
	path  string
	info  StreamInfo
	last  int
	count int
}

func newOrderCheck(path string, info StreamInfo) orderCheck {
	return orderCheck{path: path, info: info, last: -1}
}

func (o *orderCheck) check(f *Frame) error {
	if err := f.Validate(); err != nil {
		idx := -1
		if f != nil {
			idx = f.Index
		}
		return &EncodeError{Path: o.path, Frame: idx, Err: err}
	}
	if f.Index <= o.last {
		return encodeErr(o.path, f.Index, "out of order: previous frame was %d", o.last)
	}
	if f.Width != o.info.Width || f.Height != o.info.Height {
		return encodeErr(o.path, f.Index, "frame size mismatch: expected %dx%d, got %dx%d",
			o.info.Width, o.info.Height, f.Width, f.Height)
	}
	o.last = f.Index
	o.count++
	return nil
}

// Y4MSink writes a Y4M file through a partial file.
type Y4MSink struct {
	partial *partialFile
	writer  *Y4MWriter
	order   orderCheck
	closed  bool
}

// CreateY4M creates a Y4M sink for path.
func CreateY4M(path string, info StreamInfo) (*Y4MSink, error) {
	p, err := createPartial(path)
	if err != nil {
		return nil, err
	}
	return &Y4MSink{
		partial: p,
		writer:  NewY4MWriter(p.file, info),
		order:   newOrderCheck(path, info),
	}, nil
}

// Write appends a frame.
func (s *Y4MSink) Write(f *Frame) error {
	if s.closed {
		return &EncodeError{Path: s.partial.final, Frame: -1, Err: ErrSinkClosed}
	}
	if err := s.order.check(f); err != nil {
		return err
	}
	if err := s.writer.WriteFrame(f); err != nil {
		return &EncodeError{Path: s.partial.final, Frame: f.Index, Err: err}
	}
	return nil
}

// Commit flushes the stream and moves it to the output path.
func (s *Y4MSink) Commit() error {
	if s.closed {
		return &EncodeError{Path: s.partial.final, Frame: -1, Err: ErrSinkClosed}
	}
	s.closed = true
	if err := s.writer.Flush(); err != nil {
		s.partial.abort()
		return &EncodeError{Path: s.partial.final, Frame: -1, Err: fmt.Errorf("flush: %w", err)}
	}
	if err := s.partial.commit(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Y4MSink.Commit",
		"path":     s.partial.final,
		"frames":   s.order.count,
	}).Debug("Y4M output committed")
	return nil
}

// Abort discards the partial output.
func (s *Y4MSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.partial.abort()
}
