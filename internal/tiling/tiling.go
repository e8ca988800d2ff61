// Package tiling hands georeferenced rasters to gdal2tiles and accounts for
// the tile pyramid it produces.
package tiling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/chmdznr/oldmaps/internal/imaging"
)

// DefaultBinary is the GDAL tiling script.
const DefaultBinary = "gdal2tiles.py"

// MaxZoom is the deepest zoom level accepted.
const MaxZoom = 24

var (
	// ErrInvalidZoom is returned for inverted or out of range zoom levels.
	ErrInvalidZoom = errors.New("invalid zoom range")
	// ErrInvalidResampling is returned for a resampling method gdal2tiles does not know.
	ErrInvalidResampling = errors.New("invalid resampling method")
)

var resamplingMethods = map[string]bool{
	"average":     true,
	"near":        true,
	"bilinear":    true,
	"cubic":       true,
	"cubicspline": true,
	"lanczos":     true,
	"antialias":   true,
	"mode":        true,
	"max":         true,
	"min":         true,
	"med":         true,
	"q1":          true,
	"q3":          true,
}

var webViewers = map[string]bool{
	"all":        true,
	"google":     true,
	"openlayers": true,
	"leaflet":    true,
	"mapml":      true,
	"none":       true,
}

// Options describes one gdal2tiles invocation
type Options struct {
	MinZoom    int
	MaxZoom    int
	Resampling string
	// Profile is the tile profile, "mercator" by default.
	Profile string
	// WebViewer selects the generated viewer page, "leaflet" by default.
	WebViewer string
	// XYZ writes rows top-down instead of the TMS default.
	XYZ       bool
	Processes int
	Verbose   bool
}

// Validate checks the zoom range, resampling method and viewer.
func (o Options) Validate() error {
	if o.MinZoom < 0 || o.MaxZoom > MaxZoom || o.MinZoom > o.MaxZoom {
		return fmt.Errorf("%d-%d: %w", o.MinZoom, o.MaxZoom, ErrInvalidZoom)
	}
	if o.Resampling != "" && !resamplingMethods[o.Resampling] {
		return fmt.Errorf("%q: %w", o.Resampling, ErrInvalidResampling)
	}
	if o.WebViewer != "" && !webViewers[o.WebViewer] {
		return fmt.Errorf("unknown web viewer %q", o.WebViewer)
	}
	return nil
}

// BuildArgs returns the full command line for tiling src into outDir.
func BuildArgs(bin, src, outDir string, o Options) []string {
	if bin == "" {
		bin = DefaultBinary
	}
	args := make([]string, 0, 16)
	args = append(args, bin, "-z", fmt.Sprintf("%d-%d", o.MinZoom, o.MaxZoom))

	if o.Resampling != "" {
		args = append(args, "-r", o.Resampling)
	}

	profile := o.Profile
	if profile == "" {
		profile = "mercator"
	}
	args = append(args, "-p", profile)

	viewer := o.WebViewer
	if viewer == "" {
		viewer = "leaflet"
	}
	args = append(args, "-w", viewer)

	if o.XYZ {
		args = append(args, "--xyz")
	}
	if o.Processes > 1 {
		args = append(args, "--processes="+strconv.Itoa(o.Processes))
	}
	if !o.Verbose {
		args = append(args, "-q")
	}

	return append(args, src, outDir)
}

// Run executes gdal2tiles for one source. stdout is forwarded when
// Options.Verbose is set; stderr is captured for the error.
func Run(ctx context.Context, bin, src, outDir string, o Options) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%s: %w", src, imaging.ErrMissingSource)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create tile directory: %w", err)
	}

	args := BuildArgs(bin, src, outDir, o)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderr bytes.Buffer
	if o.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &imaging.ExitError{Tool: args[0], Code: ee.ExitCode(), Stderr: strings.TrimSpace(stderr.String()), Filename: src}
	}
	return fmt.Errorf("failed to run %s: %w", args[0], err)
}
