package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/limits"
)

const (
	y4mMagic       = "YUV4MPEG2"
	y4mFrameMagic  = "FRAME"
	y4mDefaultRate = 25
)

// Y4MReader decodes a YUV4MPEG2 stream.
//
// Supported colour spaces are the 4:2:0 variants (C420, C420jpeg,
// C420paldv, C420mpeg2) and Cmono, which is expanded with neutral chroma.
type Y4MReader struct {
	path   string
	closer io.Closer
	r      *bufio.Reader
	info   StreamInfo
	mono   bool
	index  int
	done   bool
}

// OpenY4M opens a Y4M file and parses its stream header.
func OpenY4M(path string) (*Y4MReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Frame: -1, Err: err}
	}
	r, err := NewY4MReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewY4MReader parses the stream header from rd. name is used in errors.
func NewY4MReader(rd io.Reader, name string) (*Y4MReader, error) {
	r := &Y4MReader{path: name, r: bufio.NewReaderSize(rd, 1<<16)}

	line, err := r.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, decodeErr(name, -1, "empty stream")
		}
		return nil, &DecodeError{Path: name, Frame: -1, Err: err}
	}
	if err := r.parseHeader(line); err != nil {
		return nil, &DecodeError{Path: name, Frame: -1, Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewY4MReader",
		"path":       name,
		"width":      r.info.Width,
		"height":     r.info.Height,
		"frame_rate": r.info.FrameRate.String(),
		"mono":       r.mono,
	}).Debug("Parsed Y4M stream header")

	return r, nil
}

// parseHeader parses "YUV4MPEG2 W.. H.. F..:.. ..." into r.info.
func (r *Y4MReader) parseHeader(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != y4mMagic {
		return fmt.Errorf("not a YUV4MPEG2 stream")
	}

	r.info.FrameRate = FrameRate{Num: y4mDefaultRate, Den: 1}
	r.info.Interlace = "p"
	for _, f := range fields[1:] {
		tag, val := f[0], f[1:]
		switch tag {
		case 'W':
			w, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid width %q", val)
			}
			r.info.Width = w
		case 'H':
			h, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid height %q", val)
			}
			r.info.Height = h
		case 'F':
			rate, err := parseRatio(val)
			if err != nil || rate.Num <= 0 || rate.Den <= 0 {
				return fmt.Errorf("invalid frame rate %q", val)
			}
			r.info.FrameRate = rate
		case 'I':
			r.info.Interlace = val
		case 'A':
			r.info.Aspect = val
		case 'C':
			switch val {
			case "420", "420jpeg", "420paldv", "420mpeg2":
			case "mono":
				r.mono = true
			default:
				return fmt.Errorf("unsupported colour space C%s", val)
			}
		case 'X':
			// Extension parameters are ignored.
		default:
			return fmt.Errorf("unknown header tag %q", f)
		}
	}
	return limits.ValidateFrameSize(r.info.Width, r.info.Height)
}

func parseRatio(s string) (FrameRate, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return FrameRate{}, fmt.Errorf("invalid ratio %q", s)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return FrameRate{}, err
	}
	d, err := strconv.Atoi(parts[1])
	if err != nil {
		return FrameRate{}, err
	}
	return FrameRate{Num: n, Den: d}, nil
}

// readLine reads a header line without its newline, bounded by
// limits.MaxHeaderLength.
func (r *Y4MReader) readLine() (string, error) {
	var buf bytes.Buffer
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && buf.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			return buf.String(), nil
		}
		if buf.Len() >= limits.MaxHeaderLength {
			return "", fmt.Errorf("header line exceeds %d bytes", limits.MaxHeaderLength)
		}
		buf.WriteByte(b)
	}
}

// Info returns the stream description.
func (r *Y4MReader) Info() StreamInfo {
	return r.info
}

// Next decodes the next frame.
func (r *Y4MReader) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}

	line, err := r.readLine()
	if err != nil {
		r.done = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &DecodeError{Path: r.path, Frame: r.index, Err: fmt.Errorf("frame header: %w", err)}
	}
	if !strings.HasPrefix(line, y4mFrameMagic) {
		r.done = true
		return nil, decodeErr(r.path, r.index, "missing FRAME marker")
	}

	frame := NewFrame(r.info.Width, r.info.Height)
	planes := [][]byte{frame.Y}
	if !r.mono {
		planes = append(planes, frame.U, frame.V)
	}
	for _, p := range planes {
		if _, err := io.ReadFull(r.r, p); err != nil {
			r.done = true
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, &DecodeError{Path: r.path, Frame: r.index, Err: fmt.Errorf("truncated frame data: %w", err)}
		}
	}

	frame.Index = r.index
	frame.PTS = r.info.FrameRate.PTS(r.index)
	r.index++
	return frame, nil
}

// Close releases the underlying file.
func (r *Y4MReader) Close() error {
	r.done = true
	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}

// Y4MWriter encodes frames as a YUV4MPEG2 stream with C420jpeg chroma.
type Y4MWriter struct {
	w           *bufio.Writer
	info        StreamInfo
	wroteHeader bool
}

// NewY4MWriter creates a writer for a stream described by info.
func NewY4MWriter(w io.Writer, info StreamInfo) *Y4MWriter {
	return &Y4MWriter{w: bufio.NewWriterSize(w, 1<<16), info: info}
}

func (y *Y4MWriter) writeHeader() error {
	rate := y.info.FrameRate
	if rate.Num <= 0 || rate.Den <= 0 {
		rate = FrameRate{Num: y4mDefaultRate, Den: 1}
	}
	hdr := fmt.Sprintf("%s W%d H%d F%s", y4mMagic, y.info.Width, y.info.Height, rate)
	if y.info.Interlace != "" {
		hdr += " I" + y.info.Interlace
	}
	if y.info.Aspect != "" {
		hdr += " A" + y.info.Aspect
	}
	hdr += " C420jpeg\n"
	_, err := y.w.WriteString(hdr)
	return err
}

// WriteFrame appends a frame. Frames must match the stream dimensions.
func (y *Y4MWriter) WriteFrame(f *Frame) error {
	if f.Width != y.info.Width || f.Height != y.info.Height {
		return fmt.Errorf("frame size mismatch: expected %dx%d, got %dx%d",
			y.info.Width, y.info.Height, f.Width, f.Height)
	}
	if !y.wroteHeader {
		if err := y.writeHeader(); err != nil {
			return err
		}
		y.wroteHeader = true
	}
	if _, err := y.w.WriteString(y4mFrameMagic + "\n"); err != nil {
		return err
	}
	for _, p := range f.Planes() {
		if err := writePlane(y.w, p); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the header (for empty streams) and any buffered data.
func (y *Y4MWriter) Flush() error {
	if !y.wroteHeader {
		if err := y.writeHeader(); err != nil {
			return err
		}
		y.wroteHeader = true
	}
	return y.w.Flush()
}

// writePlane writes the visible rows of p without stride padding.
func writePlane(w io.Writer, p Plane) error {
	if p.Stride == p.Width {
		_, err := w.Write(p.Pix[:p.Width*p.Height])
		return err
	}
	for y := 0; y < p.Height; y++ {
		if _, err := w.Write(p.Pix[y*p.Stride : y*p.Stride+p.Width]); err != nil {
			return err
		}
	}
	return nil
}
