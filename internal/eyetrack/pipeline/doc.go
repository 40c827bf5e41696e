// Package pipeline drives the tracker over a stream of eye-camera frames.
//
// It is the composition root for the per-frame flow: smoothing, CR
// localization, CR recolouring, pupil localization, adaptive pupil colour,
// annotation and QC recording. Feature finding itself lives in the
// starburst, ellipse and locate packages; the pipeline owns the state that
// carries from one frame to the next.
//
// Frames within a stream are processed strictly in order. RunBatch is the
// only parallel entry point and runs independent streams side by side.
package pipeline
