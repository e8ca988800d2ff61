package imaging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool writes an executable shell script standing in for ImageMagick.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script delegates need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "magick")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestMagickArgs(t *testing.T) {
	m := NewMagick("")
	assert.Equal(t,
		[]string{"magick", "in.tif", "-resize", "1000x1000>", "out/in.tif"},
		m.ResizeArgs("in.tif", "out/in.tif", 1000))
	assert.Equal(t,
		[]string{"magick", "in.tif", "-quality", "75", "JPEG:out/in.jpg"},
		m.EncodeArgs("in.tif", "out/in.jpg", FormatJPEG, 75))
}

func TestMagickResizeRunsTool(t *testing.T) {
	// Copies the source ($1) to the destination ($4).
	tool := fakeTool(t, `cp "$1" "$4"`+"\n")
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.jpg")
	writeTestJPEG(t, src, 20, 10)

	res, err := NewMagick(tool).Resize(context.Background(), src, filepath.Join(dir, "out.jpg"), 1000)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Width)
	assert.Equal(t, 10, res.Height)
	assert.Positive(t, res.Size)
}

func TestMagickClassifiesFailures(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.tif")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	tests := []struct {
		name     string
		script   string
		sentinel error
		code     int
	}{
		{
			name:     "unsupported",
			script:   "echo \"magick: no decode delegate for this image format 'TIF'\" >&2\nexit 1\n",
			sentinel: ErrUnsupportedFormat,
			code:     1,
		},
		{
			name:     "missing",
			script:   "echo \"magick: unable to open image 'scan.tif': No such file or directory\" >&2\nexit 1\n",
			sentinel: ErrMissingSource,
			code:     1,
		},
		{
			name:   "other",
			script: "echo \"magick: cache resources exhausted\" >&2\nexit 3\n",
			code:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMagick(fakeTool(t, tt.script))
			_, err := m.Encode(context.Background(), src, filepath.Join(dir, "o.jpg"), FormatJPEG, 70)
			require.Error(t, err)

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tt.code, exitErr.Code)
			assert.Equal(t, src, exitErr.Filename)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestMagickMissingSourceSkipsTool(t *testing.T) {
	m := NewMagick(filepath.Join(t.TempDir(), "never-run"))
	_, err := m.Resize(context.Background(), "nope.jpg", "out.jpg", 100)
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestMagickToolNotFound(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.jpg")
	writeTestJPEG(t, src, 4, 4)

	m := NewMagick(filepath.Join(dir, "no-such-binary"))
	_, err := m.Resize(context.Background(), src, filepath.Join(dir, "o.jpg"), 100)
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}
