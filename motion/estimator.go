// Package motion estimates the frame-to-frame camera motion of a video.
//
// For each consecutive pair of luma planes the Estimator detects corners in
// the earlier frame, tracks them into the later frame with pyramidal
// Lucas-Kanade optical flow and fits a similarity transform with RANSAC.
// When too few correspondences survive, the pair is reported as low
// confidence and the identity transform is used, so estimation never fails.
package motion

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/geom"
	"github.com/opd-ai/vidstab/video"
)

// Config holds the estimator tuning parameters.
type Config struct {
	BlurRadius         int
	MaxCorners         int
	QualityLevel       float64
	MinDistance        float64
	Levels             int
	WindowRadius       int
	Iterations         int
	Epsilon            float64
	RANSACIterations   int
	InlierThreshold    float64
	MinCorrespondences int
	Seed               int64
}

// DefaultConfig returns the default estimator parameters.
func DefaultConfig() Config {
	return Config{
		BlurRadius:         1,
		MaxCorners:         200,
		QualityLevel:       0.01,
		MinDistance:        8,
		Levels:             3,
		WindowRadius:       7,
		Iterations:         20,
		Epsilon:            0.01,
		RANSACIterations:   200,
		InlierThreshold:    2,
		MinCorrespondences: 10,
		Seed:               1,
	}
}

// Estimate is the motion estimated for one pair of consecutive frames.
// Transform maps coordinates in the earlier frame to the later frame.
type Estimate struct {
	Transform       geom.Transform
	Correspondences int
	Inliers         int
	RMSError        float64
	LowConfidence   bool
}

// Prepared is a luma plane preprocessed for estimation. Pass 1 keeps only
// the previous frame's Prepared value.
type Prepared struct {
	Index   int
	Pyramid *Pyramid
}

// Estimator computes per-pair motion estimates.
type Estimator struct {
	cfg      Config
	prefilt  *video.FilterChain
	Detector FeatureDetector
	Matcher  FeatureMatcher
	Fitter   TransformFitter
	Logger   logrus.FieldLogger
}

// NewEstimator creates an estimator from cfg using the Shi-Tomasi detector,
// the Lucas-Kanade matcher and the RANSAC similarity fitter.
func NewEstimator(cfg Config) *Estimator {
	if cfg.MinCorrespondences < 1 {
		cfg.MinCorrespondences = 1
	}
	if cfg.Levels < 1 {
		cfg.Levels = 1
	}

	det := NewCornerDetector()
	det.MaxCorners = cfg.MaxCorners
	det.QualityLevel = cfg.QualityLevel
	det.MinDistance = cfg.MinDistance
	det.Margin = cfg.WindowRadius + 1

	lk := NewLucasKanade()
	lk.WindowRadius = cfg.WindowRadius
	lk.Iterations = cfg.Iterations
	lk.Epsilon = cfg.Epsilon

	fit := NewRANSACFitter()
	fit.Iterations = cfg.RANSACIterations
	fit.Threshold = cfg.InlierThreshold
	fit.Seed = cfg.Seed

	return &Estimator{
		cfg:      cfg,
		prefilt:  video.NewFilterChain(video.NewBoxBlur(cfg.BlurRadius)),
		Detector: det,
		Matcher:  lk,
		Fitter:   fit,
		Logger:   logrus.StandardLogger(),
	}
}

// Config returns the estimator parameters.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Prepare blurs a luma plane and builds its pyramid.
func (e *Estimator) Prepare(luma video.Plane, index int) (*Prepared, error) {
	blurred, err := e.prefilt.Apply(luma)
	if err != nil {
		return nil, err
	}
	minSize := 2*e.cfg.WindowRadius + 1
	return &Prepared{
		Index:   index,
		Pyramid: NewPyramid(FromPlane(blurred), e.cfg.Levels, minSize),
	}, nil
}

// Estimate computes the motion from ref to target.
func (e *Estimator) Estimate(ref, target video.Plane) (Estimate, error) {
	pr, err := e.Prepare(ref, 0)
	if err != nil {
		return Estimate{Transform: geom.Identity()}, err
	}
	pt, err := e.Prepare(target, 1)
	if err != nil {
		return Estimate{Transform: geom.Identity()}, err
	}
	return e.EstimatePrepared(pr, pt), nil
}

// EstimatePrepared computes the motion between two prepared frames. It never
// fails: insufficient evidence yields a low-confidence identity.
func (e *Estimator) EstimatePrepared(ref, target *Prepared) Estimate {
	lowConfidence := func(est Estimate, reason string) Estimate {
		e.Logger.WithFields(logrus.Fields{
			"function":        "Estimator.EstimatePrepared",
			"frame":           target.Index,
			"correspondences": est.Correspondences,
			"inliers":         est.Inliers,
			"required":        e.cfg.MinCorrespondences,
			"reason":          reason,
		}).Warn("Low confidence motion estimate, using identity")
		est.Transform = geom.Identity()
		est.LowConfidence = true
		return est
	}

	if len(ref.Pyramid.Levels) == 0 || len(target.Pyramid.Levels) == 0 {
		return lowConfidence(Estimate{}, "empty frame")
	}
	refImg := ref.Pyramid.Levels[0].Img
	tgtImg := target.Pyramid.Levels[0].Img
	if refImg.Width != tgtImg.Width || refImg.Height != tgtImg.Height {
		return lowConfidence(Estimate{}, "frame size mismatch")
	}

	pts := e.Detector.Detect(refImg)
	cs := e.Matcher.Match(ref.Pyramid, target.Pyramid, pts)
	est := Estimate{Correspondences: len(cs)}
	if len(cs) < e.cfg.MinCorrespondences {
		return lowConfidence(est, "too few correspondences")
	}

	fit, err := e.Fitter.Fit(cs)
	est.Inliers = fit.Inliers
	est.RMSError = fit.RMSError
	if err != nil {
		return lowConfidence(est, err.Error())
	}
	if fit.Inliers < e.cfg.MinCorrespondences {
		return lowConfidence(est, "too few inliers")
	}
	if !fit.Transform.IsFinite() {
		return lowConfidence(est, "non-finite transform")
	}
	est.Transform = fit.Transform

	e.Logger.WithFields(logrus.Fields{
		"function":        "Estimator.EstimatePrepared",
		"frame":           target.Index,
		"correspondences": est.Correspondences,
		"inliers":         est.Inliers,
		"rms_error":       est.RMSError,
	}).Debug("Estimated pair motion")
	return est
}
