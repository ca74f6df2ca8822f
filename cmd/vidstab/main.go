package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab"
	"github.com/opd-ai/vidstab/trajectory"
	"github.com/opd-ai/vidstab/warp"
)

// CLI configuration
type CLIConfig struct {
	input              string
	output             string
	configFile         string
	radius             int
	kernel             string
	border             string
	pad                string
	minCorrespondences int
	interp             string
	workers            int
	timeout            time.Duration
	plotFile           string
	reportFile         string
	metricsFile        string
	logLevel           string
	logFormat          string
	probe              bool
	help               bool

	// set records the flags given explicitly on the command line.
	set map[string]bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	config := &CLIConfig{set: make(map[string]bool)}
	defaults := vidstab.DefaultOptions()

	// Input and output
	fs.StringVar(&config.input, "in", "", "Input video path")
	fs.StringVar(&config.output, "out", "", "Output video path")
	fs.StringVar(&config.configFile, "config", "", "JSON options file")

	// Stabilization
	fs.IntVar(&config.radius, "radius", defaults.SmoothingRadius, "Smoothing radius in frames per side")
	fs.StringVar(&config.kernel, "kernel", string(defaults.Kernel), "Smoothing kernel (box, gaussian)")
	fs.StringVar(&config.border, "border", string(defaults.BorderPolicy), "Border policy (crop-and-scale, pad)")
	fs.StringVar(&config.pad, "pad", string(defaults.PadMode), "Pad mode (color, replicate)")
	fs.IntVar(&config.minCorrespondences, "min-correspondences", defaults.MinCorrespondences, "Minimum inliers for a confident motion estimate")
	fs.StringVar(&config.interp, "interp", string(defaults.Interpolation), "Interpolation (bilinear, catmull-rom)")
	fs.IntVar(&config.workers, "workers", defaults.Workers, "Number of warp workers")
	fs.DurationVar(&config.timeout, "timeout", 0, "Overall timeout (0 disables)")

	// Outputs
	fs.StringVar(&config.plotFile, "plot", "", "Write a trajectory plot (png, svg, pdf)")
	fs.StringVar(&config.reportFile, "report", "", "Write the job report as JSON")
	fs.StringVar(&config.metricsFile, "metrics", "", "Write job metrics in Prometheus text format")

	// Logging
	fs.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&config.logFormat, "log-format", "text", "Log format (text, json)")

	fs.BoolVar(&config.probe, "probe", false, "Check that the stabilizer is usable and exit")
	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { config.set[f.Name] = true })
	return config, nil
}

// printUsage prints the usage information.
func printUsage(fs *flag.FlagSet) {
	fmt.Println("Video Stabilizer")
	fmt.Println("================")
	fmt.Println()
	fmt.Println("Removes camera shake by estimating inter-frame motion, smoothing the")
	fmt.Println("camera path and warping every frame onto the smoothed path.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s -in shaky.y4m -out steady.y4m [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fs.SetOutput(os.Stdout)
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Stronger smoothing with black borders instead of cropping\n")
	fmt.Printf("  %s -in in.mp4 -out out.mp4 -radius 60 -border pad\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Options from a file, with a trajectory plot\n")
	fmt.Printf("  %s -in in.y4m -out out.y4m -config vidstab.json -plot path.png\n", os.Args[0])
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.probe {
		return nil
	}
	if config.input == "" {
		return fmt.Errorf("input path cannot be empty")
	}
	if config.output == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if config.input == config.output {
		return fmt.Errorf("input and output must differ")
	}
	if config.timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if _, err := logrus.ParseLevel(config.logLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch config.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", config.logFormat)
	}
	return nil
}

// buildOptions loads the options file, if any, and applies explicit flags.
func buildOptions(config *CLIConfig) (*vidstab.Options, error) {
	opts := vidstab.DefaultOptions()
	if config.configFile != "" {
		loaded, err := vidstab.LoadOptions(config.configFile)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	if config.set["radius"] {
		opts.SmoothingRadius = config.radius
	}
	if config.set["kernel"] {
		opts.Kernel = trajectory.Kernel(config.kernel)
	}
	if config.set["border"] {
		opts.BorderPolicy = warp.BorderPolicy(config.border)
	}
	if config.set["pad"] {
		opts.PadMode = warp.PadMode(config.pad)
	}
	if config.set["min-correspondences"] {
		opts.MinCorrespondences = config.minCorrespondences
	}
	if config.set["interp"] {
		opts.Interpolation = warp.Interpolation(config.interp)
	}
	if config.set["workers"] {
		opts.Workers = config.workers
	}
	return opts, opts.Validate()
}

// newLogger configures a logger from the CLI flags.
func newLogger(config *CLIConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(config.logLevel); err == nil {
		logger.SetLevel(level)
	}
	if config.logFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// exitCode maps a stabilization error onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vidstab.ErrConfiguration):
		return 2
	case errors.Is(err, vidstab.ErrDecode):
		return 3
	case errors.Is(err, vidstab.ErrEncode):
		return 4
	case errors.Is(err, vidstab.ErrCancelled):
		return 130
	default:
		return 1
	}
}

// writeReport stores the report as indented JSON.
func writeReport(path string, report vidstab.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// writeOutputs writes the optional plot, report and metrics files.
func writeOutputs(config *CLIConfig, report vidstab.Report, registry *prometheus.Registry) error {
	if config.plotFile != "" {
		if err := trajectory.Plot(config.plotFile, report.Trajectory, report.Smoothed); err != nil {
			return err
		}
	}
	if config.reportFile != "" {
		if err := writeReport(config.reportFile, report); err != nil {
			return err
		}
	}
	if config.metricsFile != "" {
		if err := prometheus.WriteToTextfile(config.metricsFile, registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func run(ctx context.Context, config *CLIConfig) int {
	logger := newLogger(config)

	if config.probe {
		if err := vidstab.Probe(); err != nil {
			logger.WithError(err).Error("Probe failed")
			return 1
		}
		fmt.Println("ok")
		return 0
	}

	opts, err := buildOptions(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitCode(err)
	}
	registry := prometheus.NewRegistry()
	opts.Logger = logger
	opts.Metrics = registry

	if config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.timeout)
		defer cancel()
	}

	report, err := vidstab.Stabilize(ctx, config.input, config.output, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stabilization failed: %v\n", err)
		return exitCode(err)
	}

	if err := writeOutputs(config, report, registry); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write outputs: %v\n", err)
		return 1
	}

	fmt.Printf("Stabilized %d frames (%dx%d, %.2f fps) in %v\n", report.Frames, report.Width, report.Height,
		report.FrameRate.Float(), report.Elapsed.Round(time.Millisecond))
	fmt.Printf("Crop scale %.3f, translation variance %.2f -> %.2f\n",
		report.CropScale, report.InputVariance, report.OutputVariance)
	if n := len(report.LowConfidencePairs); n > 0 {
		fmt.Printf("%d low-confidence frame pairs: %s\n", n, formatPairs(report.LowConfidencePairs, 10))
	}
	return 0
}

// formatPairs lists at most limit pair indices.
func formatPairs(pairs []int, limit int) string {
	parts := make([]string, 0, limit+1)
	for i, p := range pairs {
		if i == limit {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ", ")
}

// main is the entry point for the stabilizer.
func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cliConfig, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if cliConfig.help {
		printUsage(fs)
		os.Exit(0)
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(2)
	}

	// Interrupts cancel the running job; partial output is removed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := run(ctx, cliConfig)
	stop()
	os.Exit(code)
}
