package video

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestY4MSink_NothingVisibleBeforeCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.y4m")
	info := StreamInfo{Width: 8, Height: 8, FrameRate: FrameRate{Num: 25, Den: 1}}

	sink, err := CreateY4M(path, info)
	require.NoError(t, err)
	require.NoError(t, sink.Write(createTestFrame(8, 8, 0)))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "output must not exist before commit")

	require.NoError(t, sink.Commit())
	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"out.y4m"}, listDir(t, dir))
}

func TestY4MSink_AbortRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.y4m")
	info := StreamInfo{Width: 8, Height: 8, FrameRate: FrameRate{Num: 25, Den: 1}}

	sink, err := CreateY4M(path, info)
	require.NoError(t, err)
	require.NoError(t, sink.Write(createTestFrame(8, 8, 0)))
	require.NoError(t, sink.Abort())

	assert.Empty(t, listDir(t, dir))

	// Abort is idempotent and writes are rejected afterwards.
	assert.NoError(t, sink.Abort())
	err = sink.Write(createTestFrame(8, 8, 1))
	assert.True(t, errors.Is(err, ErrSinkClosed))
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestY4MSink_RejectsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	info := StreamInfo{Width: 8, Height: 8, FrameRate: FrameRate{Num: 25, Den: 1}}
	sink, err := CreateY4M(filepath.Join(dir, "out.y4m"), info)
	require.NoError(t, err)
	defer sink.Abort()

	require.NoError(t, sink.Write(createTestFrame(8, 8, 3)))
	err = sink.Write(createTestFrame(8, 8, 2))
	require.Error(t, err)
	var ee *EncodeError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.Frame)
	assert.Contains(t, err.Error(), "out of order")
}

func TestY4MSink_RejectsSizeMismatch(t *testing.T) {
	info := StreamInfo{Width: 8, Height: 8, FrameRate: FrameRate{Num: 25, Den: 1}}
	sink, err := CreateY4M(filepath.Join(t.TempDir(), "out.y4m"), info)
	require.NoError(t, err)
	defer sink.Abort()

	err = sink.Write(createTestFrame(10, 8, 0))
	assert.True(t, errors.Is(err, ErrEncode))
	assert.Contains(t, err.Error(), "frame size mismatch")
}

func TestCreateSink_UnwritableDirectory(t *testing.T) {
	info := StreamInfo{Width: 8, Height: 8, FrameRate: FrameRate{Num: 25, Den: 1}}
	_, err := CreateSink(filepath.Join(t.TempDir(), "missing", "out.y4m"), info)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestCreateSink_OutputIsDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.y4m")
	require.NoError(t, os.Mkdir(target, 0o755))

	info := StreamInfo{Width: 8, Height: 8, FrameRate: FrameRate{Num: 25, Den: 1}}
	_, err := CreateSink(target, info)
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestCreateFFmpeg_OddDimensions(t *testing.T) {
	info := StreamInfo{Width: 9, Height: 8, FrameRate: FrameRate{Num: 25, Den: 1}}
	dir := t.TempDir()
	_, err := CreateFFmpeg(filepath.Join(dir, "out.mp4"), info)
	assert.True(t, errors.Is(err, ErrEncode))
	assert.Empty(t, listDir(t, dir))
}

func TestParseProbe(t *testing.T) {
	out := `{"streams":[
		{"codec_type":"audio"},
		{"codec_type":"video","width":1280,"height":720,"r_frame_rate":"30000/1001","avg_frame_rate":"0/0","nb_frames":"120"}
	]}`
	info, err := parseProbe("clip.mp4", out)
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.Equal(t, FrameRate{Num: 30000, Den: 1001}, info.FrameRate)
	assert.Equal(t, 120, info.FrameCount)

	_, err = parseProbe("clip.mp4", `{"streams":[{"codec_type":"audio"}]}`)
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = parseProbe("clip.mp4", `not json`)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestFrameValidate(t *testing.T) {
	f := createTestFrame(7, 5, 0)
	assert.NoError(t, f.Validate())

	f.U = f.U[:2]
	assert.Error(t, f.Validate())

	var nilFrame *Frame
	assert.Error(t, nilFrame.Validate())
}

func TestStderrBuffer_ConcurrentAccess(t *testing.T) {
	var buf stderrBuffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			fmt.Fprintf(&buf, "line %d\n", i)
		}
	}()
	for i := 0; i < 1000; i++ {
		_ = buf.String()
	}
	<-done
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "line 0\n"))
	assert.True(t, strings.HasSuffix(out, "line 999"))
}
