package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/opd-ai/vidstab/limits"
)

// stderrBuffer collects ffmpeg's stderr. exec copies into it from its own
// goroutine, so reads and writes are serialized.
type stderrBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the collected output without surrounding whitespace.
func (b *stderrBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}

// ffprobeOutput matches the parts of the ffprobe JSON output we use.
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// ProbeFile reads the geometry and frame rate of the first video stream of
// a container using ffprobe.
func ProbeFile(path string) (StreamInfo, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return StreamInfo{}, &DecodeError{Path: path, Frame: -1, Err: fmt.Errorf("ffprobe: %w", err)}
	}
	return parseProbe(path, out)
}

func parseProbe(path, out string) (StreamInfo, error) {
	var data ffprobeOutput
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return StreamInfo{}, &DecodeError{Path: path, Frame: -1, Err: fmt.Errorf("unmarshal ffprobe output: %w", err)}
	}
	for _, s := range data.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := StreamInfo{Width: s.Width, Height: s.Height, Interlace: "p"}
		if err := limits.ValidateFrameSize(s.Width, s.Height); err != nil {
			return StreamInfo{}, &DecodeError{Path: path, Frame: -1, Err: err}
		}
		rate, err := parseRate(s.RFrameRate)
		if err != nil {
			rate, err = parseRate(s.AvgFrameRate)
		}
		if err != nil {
			return StreamInfo{}, &DecodeError{Path: path, Frame: -1, Err: fmt.Errorf("frame rate: %w", err)}
		}
		info.FrameRate = rate
		if n, err := strconv.Atoi(s.NbFrames); err == nil {
			info.FrameCount = n
		}
		return info, nil
	}
	return StreamInfo{}, decodeErr(path, -1, "no video stream")
}

// parseRate parses ffprobe's "num/den" rates.
func parseRate(s string) (FrameRate, error) {
	r, err := parseRatio(strings.Replace(s, "/", ":", 1))
	if err != nil {
		return FrameRate{}, err
	}
	if r.Num <= 0 || r.Den <= 0 {
		return FrameRate{}, fmt.Errorf("invalid rate %q", s)
	}
	return r, nil
}

// FFmpegSource decodes any container ffmpeg understands into yuv420p
// frames read from a rawvideo pipe.
type FFmpegSource struct {
	path   string
	info   StreamInfo
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr stderrBuffer
	index  int
	done   bool
}

// OpenFFmpeg probes path and starts an ffmpeg decoder process for it.
func OpenFFmpeg(path string) (*FFmpegSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Frame: -1, Err: err}
	}
	info, err := ProbeFile(path)
	if err != nil {
		return nil, err
	}

	s := &FFmpegSource{path: path, info: info}
	s.cmd = ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "yuv420p"}).
		Compile()
	s.cmd.Stderr = &s.stderr
	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		return nil, &DecodeError{Path: path, Frame: -1, Err: err}
	}
	if err := s.cmd.Start(); err != nil {
		return nil, &DecodeError{Path: path, Frame: -1, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "OpenFFmpeg",
		"path":       path,
		"width":      info.Width,
		"height":     info.Height,
		"frame_rate": info.FrameRate.String(),
		"frames":     info.FrameCount,
	}).Debug("Started ffmpeg decoder")

	return s, nil
}

// Info returns the probed stream description.
func (s *FFmpegSource) Info() StreamInfo {
	return s.info
}

// Next reads the next frame from the decoder pipe.
func (s *FFmpegSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	frame := NewFrame(s.info.Width, s.info.Height)
	for i, p := range [][]byte{frame.Y, frame.U, frame.V} {
		n, err := io.ReadFull(s.stdout, p)
		if err == nil {
			continue
		}
		s.done = true
		if i == 0 && n == 0 && errors.Is(err, io.EOF) {
			if werr := s.cmd.Wait(); werr != nil {
				return nil, &DecodeError{Path: s.path, Frame: s.index,
					Err: fmt.Errorf("ffmpeg: %w: %s", werr, s.stderr.String())}
			}
			return nil, io.EOF
		}
		return nil, &DecodeError{Path: s.path, Frame: s.index, Err: fmt.Errorf("truncated frame data: %w", err)}
	}

	frame.Index = s.index
	frame.PTS = s.info.FrameRate.PTS(s.index)
	s.index++
	return frame, nil
}

// Close stops the decoder process.
func (s *FFmpegSource) Close() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if s.cmd.ProcessState == nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.done = true
	return nil
}

// FFmpegSink pipes yuv420p frames into an ffmpeg encoder writing H.264 to a
// partial file in the output directory.
type FFmpegSink struct {
	partial *partialFile
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  stderrBuffer
	order   orderCheck
	closed  bool
}

// CreateFFmpeg starts an ffmpeg encoder for path.
func CreateFFmpeg(path string, info StreamInfo) (*FFmpegSink, error) {
	if info.Width%2 != 0 || info.Height%2 != 0 {
		return nil, encodeErr(path, -1, "H.264 output requires even dimensions, got %dx%d", info.Width, info.Height)
	}
	p, err := createPartial(path)
	if err != nil {
		return nil, err
	}
	// ffmpeg writes the file itself.
	p.file.Close()
	p.file = nil

	rate := info.FrameRate
	if rate.Num <= 0 || rate.Den <= 0 {
		rate = FrameRate{Num: y4mDefaultRate, Den: 1}
	}

	s := &FFmpegSink{partial: p, order: newOrderCheck(path, info)}
	s.cmd = ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "yuv420p",
		"s":         fmt.Sprintf("%dx%d", info.Width, info.Height),
		"framerate": fmt.Sprintf("%d/%d", rate.Num, rate.Den),
	}).Output(p.temp, ffmpeg.KwArgs{
		"c:v":     "libx264",
		"pix_fmt": "yuv420p",
	}).OverWriteOutput().Compile()
	s.cmd.Stderr = &s.stderr
	s.stdin, err = s.cmd.StdinPipe()
	if err != nil {
		p.abort()
		return nil, &EncodeError{Path: path, Frame: -1, Err: err}
	}
	if err := s.cmd.Start(); err != nil {
		p.abort()
		return nil, &EncodeError{Path: path, Frame: -1, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "CreateFFmpeg",
		"path":       path,
		"temp":       p.temp,
		"frame_rate": rate.String(),
	}).Debug("Started ffmpeg encoder")

	return s, nil
}

// Write sends a frame to the encoder.
func (s *FFmpegSink) Write(f *Frame) error {
	if s.closed {
		return &EncodeError{Path: s.partial.final, Frame: -1, Err: ErrSinkClosed}
	}
	if err := s.order.check(f); err != nil {
		return err
	}
	for _, p := range f.Planes() {
		if err := writePlane(s.stdin, p); err != nil {
			return &EncodeError{Path: s.partial.final, Frame: f.Index,
				Err: fmt.Errorf("write to ffmpeg: %w: %s", err, s.stderr.String())}
		}
	}
	return nil
}

// Commit closes the encoder input, waits for ffmpeg and moves the file to
// the output path.
func (s *FFmpegSink) Commit() error {
	if s.closed {
		return &EncodeError{Path: s.partial.final, Frame: -1, Err: ErrSinkClosed}
	}
	s.closed = true
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		s.partial.abort()
		return &EncodeError{Path: s.partial.final, Frame: -1,
			Err: fmt.Errorf("ffmpeg: %w: %s", err, s.stderr.String())}
	}
	return s.partial.commit()
}

// Abort kills the encoder and removes the partial file.
func (s *FFmpegSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return s.partial.abort()
}
