// Package eyetrack holds the domain types shared by the eye-tracking
// layer packages: points, ellipse parameters, bounding boxes and the
// closed set of feature kinds (pupil, corneal reflection).
//
// Layering, leaves first:
//
//	frames     frame grid, sources, sinks, smoothing, mean frame
//	starburst  ray casting and threshold crossings
//	ellipse    direct conic fit and RANSAC
//	locate     seed search and per-feature localisation
//	pipeline   per-frame orchestration and tracker state
//	annotate   overlay rendering
//	qc         QC plots and reports
//	output     raw arrays, mean frame image, manifest
//
// Dependency rule: a layer may import the root package and any layer
// listed above it, never one below.
package eyetrack
