// Package imaging wraps the image resize and re-encode delegates behind
// small interfaces with typed failures.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrMissingSource means the source raster does not exist or cannot be opened.
	ErrMissingSource = errors.New("source image missing")
	// ErrUnsupportedFormat means the delegate cannot decode or encode the format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrInvalidQuality means the quality is outside 0-100.
	ErrInvalidQuality = errors.New("quality must be between 0 and 100")
	// ErrInvalidDimension means the bounding box is not positive.
	ErrInvalidDimension = errors.New("max dimension must be positive")
)

// ExitError is returned when an external tool exits with a nonzero status.
type ExitError struct {
	Tool     string
	Code     int
	Stderr   string
	Filename string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d for %s", e.Tool, e.Code, e.Filename)
	}
	return fmt.Sprintf("%s exited with status %d for %s: %s", e.Tool, e.Code, e.Filename, msg)
}

// Format is a target encoding for re-encoded derivatives.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
)

// ParseFormat accepts the usual spellings of a target format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnsupportedFormat)
}

// Ext returns the file extension written for the format.
func (f Format) Ext() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatTIFF:
		return ".tif"
	default:
		return ".jpg"
	}
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Result describes a file written by a delegate.
type Result struct {
	Path   string
	Size   int64
	Width  int
	Height int
}

// Resizer scales a raster so neither side exceeds maxDim pixels.
type Resizer interface {
	Resize(ctx context.Context, src, dst string, maxDim int) (Result, error)
}

// Encoder writes a lossy-compressed copy of a raster in the given format.
type Encoder interface {
	Encode(ctx context.Context, src, dst string, format Format, quality int) (Result, error)
}

// Delegate does both.
type Delegate interface {
	Resizer
	Encoder
}

// Fit returns the dimensions of a w×h image scaled to fit inside a
// maxDim×maxDim box with its aspect ratio preserved. Images already inside
// the box are left unchanged.
func Fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, scaleSide(h, w, maxDim)
	}
	return scaleSide(w, h, maxDim), maxDim
}

func scaleSide(side, larger, maxDim int) int {
	s := int(math.Round(float64(side) * float64(maxDim) / float64(larger)))
	if s < 1 {
		s = 1
	}
	return s
}

// ReencodedName rewrites the extension of name to match format.
func ReencodedName(name string, format Format) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + format.Ext()
}

// QualifiedName keeps the source extension in front of the one for format,
// so plan.tif becomes plan.tif.jpg.
func QualifiedName(name string, format Format) string {
	return filepath.Base(name) + format.Ext()
}

func checkSource(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%s: %w", src, ErrMissingSource)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", src, ErrMissingSource)
	}
	return nil
}

func checkQuality(quality int) error {
	if quality < 0 || quality > 100 {
		return fmt.Errorf("%d: %w", quality, ErrInvalidQuality)
	}
	return nil
}

func statResult(path string, w, h int) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat output %s: %w", path, err)
	}
	return Result{Path: path, Size: info.Size(), Width: w, Height: h}, nil
}
