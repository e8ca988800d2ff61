package imaging

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

const (
	// DefaultResizeQuality is the first JPEG quality tried for a resized
	// derivative.
	DefaultResizeQuality = 90

	minResizeQuality  = 10
	resizeQualityStep = 10
)

// Native implements Delegate with Go image codecs. JPEG, PNG and TIFF are
// supported.
type Native struct {
	// Scaler defaults to draw.CatmullRom.
	Scaler draw.Scaler
	// ResizeQuality is the starting JPEG quality for resized output. When
	// the result would be larger than the source, the quality is lowered in
	// steps down to a floor of 10. Zero means DefaultResizeQuality.
	ResizeQuality int
}

// NewNative returns a Native delegate with the default scaler.
func NewNative() *Native {
	return &Native{Scaler: draw.CatmullRom, ResizeQuality: DefaultResizeQuality}
}

// Resize writes a copy of src scaled to fit maxDim into dst, keeping the
// format implied by dst's extension. A source that already fits is copied
// byte for byte.
func (n *Native) Resize(ctx context.Context, src, dst string, maxDim int) (Result, error) {
	if maxDim <= 0 {
		return Result{}, ErrInvalidDimension
	}
	if err := checkSource(src); err != nil {
		return Result{}, err
	}
	format, err := FormatFromPath(dst)
	if err != nil {
		return Result{}, err
	}

	img, err := decodeFile(src)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	b := img.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxDim)
	if w == b.Dx() && h == b.Dy() {
		if err := copyFile(src, dst); err != nil {
			return Result{}, err
		}
		return statResult(dst, w, h)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	n.scaler().Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	info, err := os.Stat(src)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", src, ErrMissingSource)
	}
	data, err := n.encodeResized(scaled, format, info.Size())
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode %s: %w", dst, err)
	}
	if err := writeAtomic(dst, data); err != nil {
		return Result{}, err
	}
	return statResult(dst, w, h)
}

// encodeResized encodes img, lowering the JPEG quality until the output is
// no larger than limit or the floor is reached. The last attempt is kept.
func (n *Native) encodeResized(img image.Image, format Format, limit int64) ([]byte, error) {
	q := n.ResizeQuality
	if q <= 0 || q > 100 {
		q = DefaultResizeQuality
	}
	for {
		var buf bytes.Buffer
		if err := encode(&buf, img, format, q); err != nil {
			return nil, err
		}
		if format != FormatJPEG || int64(buf.Len()) <= limit || q <= minResizeQuality {
			return buf.Bytes(), nil
		}
		q = max(q-resizeQualityStep, minResizeQuality)
	}
}

// Encode writes src to dst in the given format. quality applies to JPEG.
func (n *Native) Encode(ctx context.Context, src, dst string, format Format, quality int) (Result, error) {
	if err := checkQuality(quality); err != nil {
		return Result{}, err
	}
	if err := checkSource(src); err != nil {
		return Result{}, err
	}
	img, err := decodeFile(src)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, img, format, quality); err != nil {
		return Result{}, fmt.Errorf("failed to encode %s: %w", dst, err)
	}
	if err := writeAtomic(dst, buf.Bytes()); err != nil {
		return Result{}, err
	}
	b := img.Bounds()
	return statResult(dst, b.Dx(), b.Dy())
}

func (n *Native) scaler() draw.Scaler {
	if n.Scaler == nil {
		return draw.CatmullRom
	}
	return n.Scaler
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingSource)
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// writeAtomic writes data to a temporary file next to dst and renames it
// into place.
func writeAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".oldmaps-*")
	if err != nil {
		return fmt.Errorf("failed to create output for %s: %w", dst, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func encode(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%s: %w", src, ErrMissingSource)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
