package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/eyetrack/internal/eyetrack/output"
	"github.com/banshee-data/eyetrack/internal/eyetrack/qc"
	"github.com/banshee-data/eyetrack/internal/fsutil"
	"github.com/banshee-data/eyetrack/internal/testutil"
	"github.com/banshee-data/eyetrack/internal/version"
)

// writeRecording writes n frames of the default synthetic eye as PNGs.
func writeRecording(t *testing.T, dir string, n int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	img := testutil.DefaultEyeImage().Frame().Gray()
	for i := range n {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i)))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"-version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != version.String() {
		t.Errorf("stdout = %q, want %q", got, version.String())
	}
}

func TestRun_UsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), nil, &stdout, &stderr); err == nil {
		t.Error("expected error with no input")
	}
	if err := run(context.Background(), []string{"-nope"}, &stdout, &stderr); err == nil {
		t.Error("expected error for unknown flag")
	}
	err := run(context.Background(), []string{"-h"}, &stdout, &stderr)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("-h err = %v, want flag.ErrHelp", err)
	}
}

func TestRun_BadConfig(t *testing.T) {
	in := filepath.Join(t.TempDir(), "rec")
	writeRecording(t, in, 1)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-input", in, "-config", "missing.json"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestRun_MissingInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "out")
	err := run(context.Background(), []string{"-input", filepath.Join(t.TempDir(), "absent"), "-output-dir", out}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for missing input directory")
	}
}

func TestRun_SingleRecording(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "rec")
	out := filepath.Join(root, "out")
	writeRecording(t, in, 3)

	var stdout, stderr bytes.Buffer
	args := []string{"-input", in, "-output-dir", out, "-annotate", "-qc", "-output-json"}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stderr.String(), "pupil found in 3/3 frames") {
		t.Errorf("missing summary line in log:\n%s", stderr.String())
	}

	fsys := fsutil.OSFileSystem{}
	pupil, err := output.ReadParams(fsys, filepath.Join(out, output.PupilParamsFile))
	if err != nil {
		t.Fatalf("ReadParams: %v", err)
	}
	if len(pupil) != 3 {
		t.Fatalf("got %d pupil rows, want 3", len(pupil))
	}
	eye := testutil.DefaultEyeImage()
	for i, p := range pupil {
		testutil.AssertNear(t, fmt.Sprintf("frame %d center row", i), p.CenterRow, eye.PupilCenter.Row, 1)
		testutil.AssertNear(t, fmt.Sprintf("frame %d center col", i), p.CenterCol, eye.PupilCenter.Col, 1)
	}

	for _, name := range []string{
		output.CRParamsFile,
		output.MeanFrameFile,
		filepath.Join(output.AnnotationDir, "frame_000002.png"),
		filepath.Join(output.QCDir, qc.PupilParamsPlot),
		filepath.Join(output.QCDir, qc.ReportFile),
	} {
		if !fsys.Exists(filepath.Join(out, name)) {
			t.Errorf("missing %s", name)
		}
	}

	m, err := output.ReadManifest(fsys, filepath.Join(out, output.ManifestFile))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.Input != in || m.Error != "" {
		t.Errorf("manifest input/error = %q / %q", m.Input, m.Error)
	}
	if m.Pupil != (output.FeatureStats{Frames: 3, Found: 3}) {
		t.Errorf("pupil stats = %+v", m.Pupil)
	}
	for _, key := range []string{"pupil_params", "cr_params", "mean_frame", "annotated_frames", "qc_plots", "qc_report"} {
		if m.Outputs[key] == "" {
			t.Errorf("manifest missing output %q", key)
		}
	}
}

func TestRun_EmptyRecording(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "rec")
	out := filepath.Join(root, "out")
	writeRecording(t, in, 0)

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"-input", in, "-output-dir", out, "-output-json"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}

	fsys := fsutil.OSFileSystem{}
	for _, name := range []string{output.PupilParamsFile, output.CRParamsFile} {
		got, err := output.ReadParams(fsys, filepath.Join(out, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != 0 {
			t.Errorf("%s: %d rows, want 0", name, len(got))
		}
	}
	if fsys.Exists(filepath.Join(out, output.MeanFrameFile)) {
		t.Error("mean frame written for a recording with no frames")
	}
	m, err := output.ReadManifest(fsys, filepath.Join(out, output.ManifestFile))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.Error != "" || m.Outputs["mean_frame"] != "" {
		t.Errorf("manifest error/mean = %q / %q", m.Error, m.Outputs["mean_frame"])
	}
}

func TestRun_Batch(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a", "rec")
	b := filepath.Join(root, "b", "rec")
	out := filepath.Join(root, "out")
	writeRecording(t, a, 2)
	writeRecording(t, b, 1)

	var stdout, stderr bytes.Buffer
	args := []string{"-output-dir", out, "-workers", "2", "-start", "1", a, b}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}

	fsys := fsutil.OSFileSystem{}
	for dir, want := range map[string]int{"rec": 1, "rec-2": 0} {
		got, err := output.ReadParams(fsys, filepath.Join(out, dir, output.CRParamsFile))
		if err != nil {
			t.Fatalf("%s: %v", dir, err)
		}
		if len(got) != want {
			t.Errorf("%s: %d rows, want %d", dir, len(got), want)
		}
		if fsys.Exists(filepath.Join(out, dir, output.ManifestFile)) {
			t.Errorf("%s: manifest written without -output-json", dir)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "rec")
	writeRecording(t, in, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"-input", in, "-output-dir", filepath.Join(root, "out")}, &stdout, &stderr)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
