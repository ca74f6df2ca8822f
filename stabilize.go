package vidstab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/geom"
	"github.com/opd-ai/vidstab/limits"
	"github.com/opd-ai/vidstab/motion"
	"github.com/opd-ai/vidstab/trajectory"
	"github.com/opd-ai/vidstab/video"
	"github.com/opd-ai/vidstab/warp"
)

// Report summarises a successful stabilization.
type Report struct {
	JobID     string
	Width     int
	Height    int
	Frames    int
	FrameRate video.FrameRate
	Duration  time.Duration

	// LowConfidencePairs lists pair indices k (frames k and k+1) whose
	// motion fell back to the identity transform.
	LowConfidencePairs []int
	CropScale          float64

	// InputVariance and OutputVariance are the translation variances of
	// the raw and smoothed camera trajectories.
	InputVariance  float64
	OutputVariance float64

	// Trajectory and Smoothed are the raw and smoothed camera paths.
	Trajectory []geom.Transform `json:"-"`
	Smoothed   []geom.Transform `json:"-"`

	Elapsed time.Duration
}

// Stabilize stabilizes inputPath into outputPath and blocks until done.
// On failure nothing is left at outputPath.
func Stabilize(ctx context.Context, inputPath, outputPath string, opts *Options) (Report, error) {
	return Start(ctx, inputPath, outputPath, opts).Wait()
}

// Start launches a stabilization job in the background. The job is
// cancelled when ctx is done or Job.Cancel is called.
func Start(ctx context.Context, inputPath, outputPath string, opts *Options) *Job {
	if opts == nil {
		opts = DefaultOptions()
	}
	job := newJob(inputPath, outputPath)
	job.log = opts.logger()
	ctx, cancel := context.WithCancel(ctx)
	job.cancel = cancel

	go func() {
		defer cancel()
		job.run(ctx, opts)
	}()
	return job
}

// run drives the job to a terminal state. It is the only writer of the job
// state.
func (j *Job) run(ctx context.Context, opts *Options) {
	log := opts.logger().WithFields(logrus.Fields{
		"job_id": j.ID,
		"input":  j.Input,
		"output": j.Output,
	})
	m := newMetrics(opts.Metrics)

	if err := opts.Validate(); err != nil {
		log.WithFields(logrus.Fields{
			"function": "Job.run",
			"error":    err.Error(),
		}).Error("Invalid stabilization options")
		m.jobsTotal.WithLabelValues("failed").Inc()
		j.finish(Report{}, err)
		return
	}
	if err := j.transition(JobRunning); err != nil {
		j.finish(Report{}, err)
		return
	}

	log.WithFields(logrus.Fields{
		"function":      "Job.run",
		"radius":        opts.SmoothingRadius,
		"kernel":        opts.Kernel,
		"border_policy": opts.BorderPolicy,
		"workers":       opts.Workers,
		"queue_size":    opts.QueueSize,
	}).Info("Starting stabilization")

	p := &pipeline{
		opts:    opts,
		in:      j.Input,
		out:     j.Output,
		log:     log,
		metrics: m,
		est:     motion.NewEstimator(opts.estimatorConfig()),
	}
	p.est.Logger = log

	report, err := p.run(ctx)
	if err != nil {
		log.WithFields(logrus.Fields{
			"function": "Job.run",
			"error":    err.Error(),
		}).Error("Stabilization failed")
		if rerr := removeStaleOutput(j.Input, j.Output); rerr != nil {
			log.WithFields(logrus.Fields{
				"function": "Job.run",
				"error":    rerr.Error(),
			}).Warn("Failed to remove previous output")
		}
		m.jobsTotal.WithLabelValues("failed").Inc()
		j.finish(Report{}, err)
		return
	}

	report.JobID = j.ID
	report.Elapsed = j.Elapsed()
	log.WithFields(logrus.Fields{
		"function":        "Job.run",
		"frames":          report.Frames,
		"crop_scale":      report.CropScale,
		"low_confidence":  len(report.LowConfidencePairs),
		"input_variance":  report.InputVariance,
		"output_variance": report.OutputVariance,
		"elapsed":         report.Elapsed,
	}).Info("Stabilization succeeded")
	m.jobsTotal.WithLabelValues("succeeded").Inc()
	j.finish(report, nil)
}

// removeStaleOutput deletes a regular file left at output by an earlier
// run. The input file is never removed, even when both paths name it.
func removeStaleOutput(input, output string) error {
	fi, err := os.Lstat(output)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !fi.Mode().IsRegular() {
		return nil
	}
	if in, err := os.Stat(input); err == nil && os.SameFile(in, fi) {
		return nil
	}
	return os.Remove(output)
}

type pipeline struct {
	opts    *Options
	in      string
	out     string
	log     *logrus.Entry
	metrics *metrics
	est     *motion.Estimator
}

// run executes both passes. Pass 1 estimates per-pair motion while holding
// only the previous frame; pass 2 warps frames in parallel and writes them
// in order.
func (p *pipeline) run(ctx context.Context) (Report, error) {
	start := time.Now()
	info, pairs, low, err := p.estimateMotion(ctx)
	if err != nil {
		return Report{}, p.classify(ctx, err)
	}
	p.metrics.stageDuration.WithLabelValues("estimate").Observe(time.Since(start).Seconds())

	start = time.Now()
	traj := trajectory.Accumulate(pairs)
	smooth := trajectory.NewSmoother(p.opts.SmoothingRadius, p.opts.Kernel).Smooth(traj)
	corrections, err := trajectory.Corrections(traj, smooth)
	if err != nil {
		return Report{}, fmt.Errorf("trajectory: %w", err)
	}
	scale := 1.0
	if p.opts.BorderPolicy == warp.BorderCropScale {
		scale = warp.CropScale(corrections, info.Width, info.Height, p.opts.MinCropScale)
	}
	p.metrics.cropScale.Set(scale)
	p.metrics.stageDuration.WithLabelValues("smooth").Observe(time.Since(start).Seconds())

	p.log.WithFields(logrus.Fields{
		"function":       "pipeline.run",
		"frames":         len(traj),
		"low_confidence": len(low),
		"crop_scale":     scale,
	}).Info("Trajectory smoothed")

	start = time.Now()
	if err := p.render(ctx, info, corrections, scale); err != nil {
		return Report{}, p.classify(ctx, err)
	}
	p.metrics.stageDuration.WithLabelValues("render").Observe(time.Since(start).Seconds())

	before := trajectory.ComputeStats(traj)
	after := trajectory.ComputeStats(smooth)
	return Report{
		Width:              info.Width,
		Height:             info.Height,
		Frames:             len(traj),
		FrameRate:          info.FrameRate,
		Duration:           info.Duration(len(traj)),
		LowConfidencePairs: low,
		CropScale:          scale,
		InputVariance:      before.TranslationVariance(),
		OutputVariance:     after.TranslationVariance(),
		Trajectory:         traj,
		Smoothed:           smooth,
	}, nil
}

// classify turns failures caused by cancellation into ErrCancelled.
func (p *pipeline) classify(ctx context.Context, err error) error {
	if cause := ctx.Err(); cause != nil {
		return cancelled(cause)
	}
	return err
}

func (p *pipeline) open() (video.Source, error) {
	src, err := p.opts.sourceOpener()(p.in)
	if err != nil {
		if errors.Is(err, video.ErrDecode) {
			return nil, err
		}
		return nil, &video.DecodeError{Path: p.in, Frame: -1, Err: err}
	}
	info := src.Info()
	if err := limits.ValidateFrameSize(info.Width, info.Height); err != nil {
		src.Close()
		return nil, &video.DecodeError{Path: p.in, Frame: -1, Err: err}
	}
	return src, nil
}

// decode sends frames from src to out until EOF, checking that indices are
// sequential and dimensions are constant.
func (p *pipeline) decode(ctx context.Context, src video.Source, out chan<- *video.Frame, tokens chan struct{}) error {
	info := src.Info()
	for idx := 0; ; idx++ {
		if tokens != nil {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		f, err := src.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(err, video.ErrDecode) || ctx.Err() != nil {
				return err
			}
			return &video.DecodeError{Path: p.in, Frame: idx, Err: err}
		}
		if f.Index != idx {
			return &video.DecodeError{Path: p.in, Frame: idx, Err: fmt.Errorf("unexpected frame index %d", f.Index)}
		}
		if f.Width != info.Width || f.Height != info.Height {
			return &video.DecodeError{Path: p.in, Frame: idx,
				Err: fmt.Errorf("frame size changed to %dx%d", f.Width, f.Height)}
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// estimateMotion is pass 1.
func (p *pipeline) estimateMotion(ctx context.Context) (video.StreamInfo, []geom.Transform, []int, error) {
	src, err := p.open()
	if err != nil {
		return video.StreamInfo{}, nil, nil, err
	}
	defer src.Close()
	info := src.Info()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan *video.Frame, p.opts.QueueSize)
	errc := make(chan error, 1)
	go func() {
		defer close(frames)
		errc <- p.decode(ctx, src, frames, nil)
	}()

	var (
		pairs []geom.Transform
		low   []int
		prev  *motion.Prepared
		count int
		fail  error
	)
	for f := range frames {
		if fail != nil || ctx.Err() != nil {
			continue
		}
		cur, err := p.est.Prepare(f.Luma(), f.Index)
		if err != nil {
			fail = &video.DecodeError{Path: p.in, Frame: f.Index, Err: err}
			cancel()
			continue
		}
		if prev != nil {
			est := p.est.EstimatePrepared(prev, cur)
			pairs = append(pairs, est.Transform)
			if est.LowConfidence {
				low = append(low, len(pairs)-1)
				p.metrics.lowConfidence.Inc()
			}
		}
		prev = cur
		count++
		p.metrics.framesTotal.WithLabelValues("estimate").Inc()
	}

	decodeErr := <-errc
	if fail != nil {
		return info, nil, nil, fail
	}
	if decodeErr != nil {
		return info, nil, nil, decodeErr
	}
	if err := ctx.Err(); err != nil {
		return info, nil, nil, err
	}
	if count == 0 {
		return info, nil, nil, &video.DecodeError{Path: p.in, Frame: -1, Err: errors.New("input contains no frames")}
	}

	p.log.WithFields(logrus.Fields{
		"function":       "pipeline.estimateMotion",
		"frames":         count,
		"low_confidence": len(low),
	}).Info("Motion estimation complete")
	return info, pairs, low, nil
}

// render is pass 2. At most QueueSize+Workers frames are decoded and not
// yet written at any time.
func (p *pipeline) render(ctx context.Context, info video.StreamInfo, corrections []geom.Transform, scale float64) (err error) {
	src, err := p.open()
	if err != nil {
		return err
	}
	defer src.Close()
	if got := src.Info(); got.Width != info.Width || got.Height != info.Height {
		return &video.DecodeError{Path: p.in, Frame: -1,
			Err: fmt.Errorf("stream changed between passes: %dx%d, was %dx%d", got.Width, got.Height, info.Width, info.Height)}
	}

	resampler, err := warp.NewResampler(p.opts.Interpolation)
	if err != nil {
		return err
	}
	warper := warp.NewWarper(resampler, p.opts.BorderPolicy, p.opts.PadMode, scale)
	warper.PadValue = p.opts.PadValue

	sink, err := p.opts.sinkFactory()(p.out, info)
	if err != nil {
		if errors.Is(err, video.ErrEncode) {
			return err
		}
		return &video.EncodeError{Path: p.out, Frame: -1, Err: err}
	}
	defer func() {
		if err != nil {
			sink.Abort()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errOnce  sync.Once
		firstErr error
	)
	fail := func(e error) {
		errOnce.Do(func() {
			firstErr = e
			cancel()
		})
	}

	workers := p.opts.Workers
	inflight := p.opts.QueueSize + workers
	tokens := make(chan struct{}, inflight)
	frames := make(chan *video.Frame, p.opts.QueueSize)
	results := make(chan *video.Frame, inflight)

	go func() {
		defer close(frames)
		if e := p.decode(ctx, src, frames, tokens); e != nil && ctx.Err() == nil {
			fail(e)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.metrics.activeWorkers.Inc()
			defer p.metrics.activeWorkers.Dec()
			for f := range frames {
				if ctx.Err() != nil {
					continue
				}
				if f.Index >= len(corrections) {
					fail(&video.DecodeError{Path: p.in, Frame: len(corrections),
						Err: fmt.Errorf("frame count changed between passes: expected %d", len(corrections))})
					continue
				}
				out, e := warper.Warp(f, corrections[f.Index])
				if e != nil {
					fail(fmt.Errorf("warp frame %d: %w", f.Index, e))
					continue
				}
				results <- out
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]*video.Frame, inflight)
	next := 0
	for out := range results {
		if ctx.Err() != nil {
			continue
		}
		pending[out.Index] = out
		for {
			f, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if e := sink.Write(f); e != nil {
				fail(e)
				break
			}
			<-tokens
			next++
			p.metrics.framesTotal.WithLabelValues("render").Inc()
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if cause := ctx.Err(); cause != nil {
		return cancelled(cause)
	}
	if next != len(corrections) {
		return &video.DecodeError{Path: p.in, Frame: next,
			Err: fmt.Errorf("frame count changed between passes: expected %d, got %d", len(corrections), next)}
	}

	if err := sink.Commit(); err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{
		"function": "pipeline.render",
		"frames":   next,
		"output":   p.out,
	}).Info("Output committed")
	return nil
}
