package vidstab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/limits"
	"github.com/opd-ai/vidstab/motion"
	"github.com/opd-ai/vidstab/trajectory"
	"github.com/opd-ai/vidstab/video"
	"github.com/opd-ai/vidstab/warp"
)

// maxConfigFileSize bounds option files read by LoadOptions.
const maxConfigFileSize = 1 * 1024 * 1024

// maxCornerLimit bounds MaxCorners.
const maxCornerLimit = 10000

// Options contains the configuration for a stabilization job.
type Options struct {
	// SmoothingRadius is the number of neighbouring frames on each side
	// averaged by the trajectory smoother. Zero disables smoothing.
	SmoothingRadius int               `json:"smoothing_radius"`
	Kernel          trajectory.Kernel `json:"kernel"`

	// BorderPolicy selects crop-and-scale or pad; PadMode and PadValue
	// apply to pad only.
	BorderPolicy warp.BorderPolicy `json:"border_policy"`
	PadMode      warp.PadMode      `json:"pad_mode"`
	PadValue     [3]uint8          `json:"pad_value"`
	MinCropScale float64           `json:"min_crop_scale"`

	// MinCorrespondences is the inlier count below which a frame pair
	// falls back to the identity transform.
	MinCorrespondences int                `json:"min_correspondences"`
	MaxCorners         int                `json:"max_corners"`
	Interpolation      warp.Interpolation `json:"interpolation"`

	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`

	// Metrics, when set, receives the job metrics.
	Metrics prometheus.Registerer `json:"-"`
	// Logger defaults to the logrus standard logger.
	Logger *logrus.Logger `json:"-"`
	// SourceOpener and SinkFactory default to video.OpenSource and
	// video.CreateSink.
	SourceOpener video.SourceOpener `json:"-"`
	SinkFactory  video.SinkFactory  `json:"-"`
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		SmoothingRadius:    30,
		Kernel:             trajectory.KernelBox,
		BorderPolicy:       warp.BorderCropScale,
		PadMode:            warp.PadColor,
		PadValue:           [3]uint8{16, 128, 128},
		MinCropScale:       0.5,
		MinCorrespondences: 10,
		MaxCorners:         200,
		Interpolation:      warp.InterpBilinear,
		Workers:            defaultWorkers(runtime.NumCPU()),
		QueueSize:          8,
	}
}

// defaultWorkers bounds the CPU count to [1, limits.MaxWorkers].
func defaultWorkers(cpus int) int {
	switch {
	case cpus < 1:
		return 1
	case cpus > limits.MaxWorkers:
		return limits.MaxWorkers
	default:
		return cpus
	}
}

// LoadOptions reads options from a JSON file. Fields omitted from the file
// keep their default values.
func LoadOptions(path string) (*Options, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, &ConfigurationError{Field: "config", Value: path, Reason: fmt.Sprintf("must have .json extension, got %q", ext)}
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, &ConfigurationError{Field: "config", Value: path, Reason: err.Error()}
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, &ConfigurationError{Field: "config", Value: path,
			Reason: fmt.Sprintf("file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)}
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, &ConfigurationError{Field: "config", Value: path, Reason: err.Error()}
	}

	opts := DefaultOptions()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, &ConfigurationError{Field: "config", Value: path, Reason: "failed to parse JSON: " + err.Error()}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks every option and returns a *ConfigurationError for the
// first invalid one.
func (o *Options) Validate() error {
	ranges := []struct {
		field  string
		value  int
		lo, hi int
	}{
		{"smoothing_radius", o.SmoothingRadius, 0, limits.MaxSmoothingRadius},
		{"max_corners", o.MaxCorners, 1, maxCornerLimit},
		{"min_correspondences", o.MinCorrespondences, 1, o.MaxCorners},
		{"workers", o.Workers, 1, limits.MaxWorkers},
		{"queue_size", o.QueueSize, 0, limits.MaxQueueSize},
	}
	for _, r := range ranges {
		if err := limits.ValidateRange(r.field, r.value, r.lo, r.hi); err != nil {
			return &ConfigurationError{Field: r.field, Value: r.value, Reason: err.Error()}
		}
	}

	if _, err := trajectory.ParseKernel(string(o.Kernel)); err != nil {
		return &ConfigurationError{Field: "kernel", Value: o.Kernel, Reason: err.Error()}
	}
	if _, err := warp.ParseBorderPolicy(string(o.BorderPolicy)); err != nil {
		return &ConfigurationError{Field: "border_policy", Value: o.BorderPolicy, Reason: err.Error()}
	}
	if _, err := warp.ParsePadMode(string(o.PadMode)); err != nil {
		return &ConfigurationError{Field: "pad_mode", Value: o.PadMode, Reason: err.Error()}
	}
	if _, err := warp.ParseInterpolation(string(o.Interpolation)); err != nil {
		return &ConfigurationError{Field: "interpolation", Value: o.Interpolation, Reason: err.Error()}
	}
	if !(o.MinCropScale > 0 && o.MinCropScale <= 1) {
		return &ConfigurationError{Field: "min_crop_scale", Value: o.MinCropScale, Reason: "must be in (0, 1]"}
	}
	return nil
}

// estimatorConfig derives the motion estimator parameters.
func (o *Options) estimatorConfig() motion.Config {
	cfg := motion.DefaultConfig()
	cfg.MaxCorners = o.MaxCorners
	cfg.MinCorrespondences = o.MinCorrespondences
	return cfg
}

func (o *Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

func (o *Options) sourceOpener() video.SourceOpener {
	if o.SourceOpener != nil {
		return o.SourceOpener
	}
	return video.OpenSource
}

func (o *Options) sinkFactory() video.SinkFactory {
	if o.SinkFactory != nil {
		return o.SinkFactory
	}
	return video.CreateSink
}
