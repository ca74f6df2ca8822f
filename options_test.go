package vidstab

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/limits"
	"github.com/opd-ai/vidstab/trajectory"
	"github.com/opd-ai/vidstab/warp"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 30, opts.SmoothingRadius)
	assert.Equal(t, trajectory.KernelBox, opts.Kernel)
	assert.Equal(t, warp.BorderCropScale, opts.BorderPolicy)
	assert.Equal(t, warp.PadColor, opts.PadMode)
	assert.Equal(t, [3]uint8{16, 128, 128}, opts.PadValue)
	assert.Equal(t, 10, opts.MinCorrespondences)
	assert.Equal(t, 200, opts.MaxCorners)
	assert.Equal(t, warp.InterpBilinear, opts.Interpolation)
	assert.Equal(t, 0.5, opts.MinCropScale)
	assert.Equal(t, defaultWorkers(runtime.NumCPU()), opts.Workers)
	assert.Equal(t, 8, opts.QueueSize)
	assert.NoError(t, opts.Validate())

	cfg := opts.estimatorConfig()
	assert.Equal(t, 10, cfg.MinCorrespondences)
	assert.Equal(t, 200, cfg.MaxCorners)
}

func TestDefaultWorkers(t *testing.T) {
	tests := []struct {
		cpus int
		want int
	}{
		{0, 1},
		{1, 1},
		{8, 8},
		{limits.MaxWorkers, limits.MaxWorkers},
		{1024, limits.MaxWorkers},
	}
	for _, tt := range tests {
		got := defaultWorkers(tt.cpus)
		assert.Equal(t, tt.want, got, "cpus=%d", tt.cpus)
		opts := DefaultOptions()
		opts.Workers = got
		assert.NoError(t, opts.Validate(), "cpus=%d", tt.cpus)
	}
}

func TestLoadOptions_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidstab.json")
	content := `{"smoothing_radius": 12, "border_policy": "pad", "pad_mode": "replicate", "pad_value": [0, 128, 128]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 12, opts.SmoothingRadius)
	assert.Equal(t, warp.BorderPad, opts.BorderPolicy)
	assert.Equal(t, warp.PadReplicate, opts.PadMode)
	assert.Equal(t, [3]uint8{0, 128, 128}, opts.PadValue)
	assert.Equal(t, 10, opts.MinCorrespondences)
	assert.Equal(t, trajectory.KernelBox, opts.Kernel)
}

func TestLoadOptions_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{"wrong extension", write("opts.yaml", "{}"), "must have .json extension"},
		{"missing", filepath.Join(dir, "nope.json"), "no such file"},
		{"bad json", write("bad.json", "{"), "failed to parse JSON"},
		{"invalid value", write("neg.json", `{"smoothing_radius": -4}`), "smoothing_radius=-4 not in [0, 10000]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadOptions(tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestOptions_Accessors(t *testing.T) {
	opts := DefaultOptions()
	assert.NotNil(t, opts.logger())
	assert.NotNil(t, opts.sourceOpener())
	assert.NotNil(t, opts.sinkFactory())

	l := quietLogger()
	opts.Logger = l
	assert.Same(t, l, opts.logger())
}
