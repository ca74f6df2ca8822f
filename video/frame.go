// Package video provides the frame types and the frame source/sink stages of
// the stabilization pipeline.
//
// Frames are YUV 4:2:0 rasters. Sources decode a video file into an ordered,
// forward-only sequence of frames; sinks encode frames back into a file and
// only make the file visible at the output path once it is complete.
//
//	Source (Y4M | ffmpeg) → *Frame → ... → Sink (Y4M | ffmpeg) → Commit
package video

import (
	"fmt"
	"time"

	"github.com/opd-ai/vidstab/limits"
)

// Frame represents a video frame in YUV 4:2:0 format.
//
// Chroma planes are ceil(Width/2) x ceil(Height/2). Index is the position
// of the frame in its stream and PTS its presentation timestamp. A frame is
// not modified after a source produces it.
type Frame struct {
	Width   int
	Height  int
	Y       []byte // Luminance plane
	U       []byte // Chrominance U plane
	V       []byte // Chrominance V plane
	YStride int
	UStride int
	VStride int
	Index   int
	PTS     time.Duration
}

// Plane is a single 8-bit image plane.
type Plane struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// ChromaSize returns the chroma plane dimensions for a luma size.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// NewFrame allocates a frame with tightly packed planes. Chroma planes are
// initialised to the neutral value 128.
func NewFrame(width, height int) *Frame {
	cw, ch := ChromaSize(width, height)
	f := &Frame{
		Width:   width,
		Height:  height,
		YStride: width,
		UStride: cw,
		VStride: cw,
		Y:       make([]byte, width*height),
		U:       make([]byte, cw*ch),
		V:       make([]byte, cw*ch),
	}
	for i := range f.U {
		f.U[i] = 128
		f.V[i] = 128
	}
	return f
}

// Luma returns the Y plane.
func (f *Frame) Luma() Plane {
	return Plane{Width: f.Width, Height: f.Height, Stride: f.YStride, Pix: f.Y}
}

// Planes returns the Y, U and V planes in that order.
func (f *Frame) Planes() [3]Plane {
	cw, ch := ChromaSize(f.Width, f.Height)
	return [3]Plane{
		f.Luma(),
		{Width: cw, Height: ch, Stride: f.UStride, Pix: f.U},
		{Width: cw, Height: ch, Stride: f.VStride, Pix: f.V},
	}
}

// Clone creates a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Width:   f.Width,
		Height:  f.Height,
		YStride: f.YStride,
		UStride: f.UStride,
		VStride: f.VStride,
		Y:       append([]byte(nil), f.Y...),
		U:       append([]byte(nil), f.U...),
		V:       append([]byte(nil), f.V...),
		Index:   f.Index,
		PTS:     f.PTS,
	}
}

// Validate checks that the frame dimensions are within limits and that the
// planes hold enough data for their strides.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("video frame cannot be nil")
	}
	if err := limits.ValidateFrameSize(f.Width, f.Height); err != nil {
		return err
	}

	cw, ch := ChromaSize(f.Width, f.Height)
	checks := []struct {
		name         string
		data         []byte
		stride, w, h int
	}{
		{"Y", f.Y, f.YStride, f.Width, f.Height},
		{"U", f.U, f.UStride, cw, ch},
		{"V", f.V, f.VStride, cw, ch},
	}
	for _, c := range checks {
		if c.stride < c.w {
			return fmt.Errorf("%s stride %d smaller than width %d", c.name, c.stride, c.w)
		}
		need := (c.h-1)*c.stride + c.w
		if len(c.data) < need {
			return fmt.Errorf("%s plane too small: got %d, expected %d", c.name, len(c.data), need)
		}
	}
	return nil
}

// FrameRate is a rational frame rate in frames per second.
type FrameRate struct {
	Num int
	Den int
}

// Float returns the frame rate as a float.
func (r FrameRate) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// PTS returns the presentation timestamp of the frame at index.
func (r FrameRate) PTS(index int) time.Duration {
	if r.Num <= 0 {
		return 0
	}
	return time.Duration(int64(index) * int64(time.Second) * int64(r.Den) / int64(r.Num))
}

// String returns the rate in Y4M "num:den" form.
func (r FrameRate) String() string {
	return fmt.Sprintf("%d:%d", r.Num, r.Den)
}

// StreamInfo describes a decoded video stream.
type StreamInfo struct {
	Width      int
	Height     int
	FrameRate  FrameRate
	FrameCount int // 0 when unknown
	// Interlace and Aspect carry Y4M header tags through to the sink.
	Interlace string
	Aspect    string
}

// Duration returns the stream duration for a given frame count.
func (s StreamInfo) Duration(frames int) time.Duration {
	return s.FrameRate.PTS(frames)
}
