package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	_ "golang.org/x/image/tiff"
)

// DefaultMagickBinary is the ImageMagick 7 entry point. ImageMagick 6
// installations use "convert".
const DefaultMagickBinary = "magick"

var (
	reUnsupported = regexp.MustCompile(
		`(?i)no decode delegate|no encode delegate|improper image header|` +
			`not a TIFF|Not a JPEG file|unable to read image data|corrupt image`)

	reMissing = regexp.MustCompile(
		`(?i)unable to open image|No such file or directory`)
)

// Magick implements Delegate by running the ImageMagick command line tool.
type Magick struct {
	Binary string
	// Stderr receives a copy of the tool's stderr when set.
	Stderr io.Writer
}

// NewMagick returns a Magick delegate for the given binary.
func NewMagick(binary string) *Magick {
	if binary == "" {
		binary = DefaultMagickBinary
	}
	return &Magick{Binary: binary}
}

// ResizeArgs builds the command line for a resize. The ">" geometry flag
// only shrinks images larger than the box.
func (m *Magick) ResizeArgs(src, dst string, maxDim int) []string {
	geometry := fmt.Sprintf("%dx%d>", maxDim, maxDim)
	return []string{m.Binary, src, "-resize", geometry, dst}
}

// EncodeArgs builds the command line for a re-encode. The output format is
// forced with an explicit prefix so it does not depend on dst's extension.
func (m *Magick) EncodeArgs(src, dst string, format Format, quality int) []string {
	return []string{m.Binary, src, "-quality", strconv.Itoa(quality), magickFormat(format) + ":" + dst}
}

func (m *Magick) Resize(ctx context.Context, src, dst string, maxDim int) (Result, error) {
	if maxDim <= 0 {
		return Result{}, ErrInvalidDimension
	}
	if err := checkSource(src); err != nil {
		return Result{}, err
	}
	if err := m.run(ctx, m.ResizeArgs(src, dst, maxDim), src); err != nil {
		return Result{}, err
	}
	w, h := readDimensions(dst)
	return statResult(dst, w, h)
}

func (m *Magick) Encode(ctx context.Context, src, dst string, format Format, quality int) (Result, error) {
	if err := checkQuality(quality); err != nil {
		return Result{}, err
	}
	if err := checkSource(src); err != nil {
		return Result{}, err
	}
	if err := m.run(ctx, m.EncodeArgs(src, dst, format, quality), src); err != nil {
		return Result{}, err
	}
	w, h := readDimensions(dst)
	return statResult(dst, w, h)
}

func (m *Magick) run(ctx context.Context, args []string, src string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if m.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, m.Stderr)
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return classify(m.Binary, src, stderr.String(), err)
}

// classify converts a failed invocation into a typed error. Known stderr
// patterns map onto the package sentinels; the exit error is kept in the
// chain either way.
func classify(tool, src, stderr string, err error) error {
	exitErr := &ExitError{Tool: tool, Code: -1, Stderr: stderr, Filename: src}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		exitErr.Code = ee.ExitCode()
	} else {
		// The tool could not be started at all.
		return fmt.Errorf("failed to run %s: %w", tool, err)
	}

	switch {
	case reMissing.MatchString(stderr):
		return fmt.Errorf("%w: %w", ErrMissingSource, exitErr)
	case reUnsupported.MatchString(stderr):
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, exitErr)
	}
	return exitErr
}

func magickFormat(f Format) string {
	switch f {
	case FormatPNG:
		return "PNG"
	case FormatTIFF:
		return "TIFF"
	default:
		return "JPEG"
	}
}

func readDimensions(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
