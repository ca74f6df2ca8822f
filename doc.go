// Package vidstab removes camera shake from video files.
//
// Stabilization runs in two passes over the input. The first pass estimates
// the camera motion between every pair of consecutive frames and keeps only
// the previous frame in memory. The cumulative camera path is then smoothed
// and turned into one correction per frame. The second pass decodes the
// input again, warps frames in parallel and writes them in order to a
// temporary file that is renamed onto the output path only on success.
//
// Example:
//
//	opts := vidstab.DefaultOptions()
//	opts.SmoothingRadius = 15
//	opts.BorderPolicy = warp.BorderPad
//
//	report, err := vidstab.Stabilize(ctx, "shaky.y4m", "steady.y4m", opts)
//	if errors.Is(err, vidstab.ErrDecode) {
//	    // input unreadable
//	}
//	fmt.Printf("%d frames, crop %.2f\n", report.Frames, report.CropScale)
//
// Jobs can also run in the background:
//
//	job := vidstab.Start(ctx, in, out, opts)
//	<-job.Done()
//	report, err := job.Result()
//
// Y4M (YUV4MPEG2) files are read and written natively; other containers
// are decoded and encoded through ffmpeg.
package vidstab
