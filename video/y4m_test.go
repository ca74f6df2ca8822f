package video

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestFrame builds a frame with a deterministic pattern.
func createTestFrame(width, height, index int) *Frame {
	f := NewFrame(width, height)
	for i := range f.Y {
		f.Y[i] = byte((i + index*7) % 256)
	}
	for i := range f.U {
		f.U[i] = byte(100 + index%50)
		f.V[i] = byte(150 - index%50)
	}
	f.Index = index
	return f
}

func writeY4M(t *testing.T, path string, info StreamInfo, frames []*Frame) {
	t.Helper()
	sink, err := CreateY4M(path, info)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, sink.Write(f))
	}
	require.NoError(t, sink.Commit())
}

func TestY4M_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.y4m")
	info := StreamInfo{Width: 33, Height: 17, FrameRate: FrameRate{Num: 30000, Den: 1001}, Interlace: "p", Aspect: "1:1"}

	var frames []*Frame
	for i := 0; i < 5; i++ {
		frames = append(frames, createTestFrame(33, 17, i))
	}
	writeY4M(t, path, info, frames)

	src, err := OpenY4M(path)
	require.NoError(t, err)
	defer src.Close()

	got := src.Info()
	assert.Equal(t, 33, got.Width)
	assert.Equal(t, 17, got.Height)
	assert.Equal(t, FrameRate{Num: 30000, Den: 1001}, got.FrameRate)
	assert.Equal(t, "1:1", got.Aspect)

	for i := 0; i < 5; i++ {
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, got.FrameRate.PTS(i), f.PTS)
		assert.Equal(t, frames[i].Y, f.Y)
		assert.Equal(t, frames[i].U, f.U)
		assert.Equal(t, frames[i].V, f.V)
	}
	_, err = src.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestY4MReader_Mono(t *testing.T) {
	data := "YUV4MPEG2 W4 H2 F25:1 Cmono\nFRAME\n" + string([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	r, err := NewY4MReader(strings.NewReader(data), "mono")
	require.NoError(t, err)

	f, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, f.Y)
	assert.Equal(t, []byte{128, 128}, f.U)
	assert.Equal(t, []byte{128, 128}, f.V)
}

func TestY4MReader_HeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		errMsg string
	}{
		{"empty", "", "empty stream"},
		{"wrong magic", "RIFF....\n", "not a YUV4MPEG2 stream"},
		{"bad width", "YUV4MPEG2 Wabc H2\n", "invalid width"},
		{"zero rate", "YUV4MPEG2 W2 H2 F0:1\n", "invalid frame rate"},
		{"422", "YUV4MPEG2 W2 H2 C422\n", "unsupported colour space"},
		{"missing size", "YUV4MPEG2 F25:1\n", "empty frame"},
		{"unterminated", "YUV4MPEG2 W2 H2", "unexpected EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewY4MReader(strings.NewReader(tt.data), "test.y4m")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, -1, de.Frame)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestY4MReader_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("YUV4MPEG2 W4 H4 F25:1 C420jpeg\n")
	buf.WriteString("FRAME\n")
	buf.Write(make([]byte, 16+4+4))
	buf.WriteString("FRAME\n")
	buf.Write(make([]byte, 10))

	r, err := NewY4MReader(&buf, "short.y4m")
	require.NoError(t, err)

	_, err = r.Next(context.Background())
	require.NoError(t, err)

	_, err = r.Next(context.Background())
	require.Error(t, err)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Frame)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	// The sequence is terminated after a decode failure.
	_, err = r.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestY4MReader_MissingFrameMarker(t *testing.T) {
	data := "YUV4MPEG2 W2 H2 F25:1\nGARBAGE\n"
	r, err := NewY4MReader(strings.NewReader(data), "bad.y4m")
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Contains(t, err.Error(), "missing FRAME marker")
}

func TestY4MReader_Cancelled(t *testing.T) {
	data := "YUV4MPEG2 W2 H2 F25:1\nFRAME\n" + string(make([]byte, 6))
	r, err := NewY4MReader(strings.NewReader(data), "c.y4m")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenY4M_Missing(t *testing.T) {
	_, err := OpenY4M(filepath.Join(t.TempDir(), "nope.y4m"))
	assert.True(t, errors.Is(err, ErrDecode))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFrameRate(t *testing.T) {
	r := FrameRate{Num: 30, Den: 1}
	assert.Equal(t, time.Second, r.PTS(30))
	assert.Equal(t, 30.0, r.Float())
	assert.Equal(t, "30:1", r.String())
	assert.Equal(t, time.Duration(0), FrameRate{}.PTS(5))
	assert.Equal(t, 0.0, FrameRate{}.Float())
}
