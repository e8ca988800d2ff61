package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chmdznr/oldmaps/internal/imaging"
	"github.com/chmdznr/oldmaps/internal/inventory"
	"github.com/chmdznr/oldmaps/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDelegate writes a fixed number of bytes per call and can be told to
// fail for specific source names.
type fakeDelegate struct {
	size  int
	fail  map[string]error
	calls []string
}

func (f *fakeDelegate) write(src, dst string) (imaging.Result, error) {
	f.calls = append(f.calls, src)
	if err, ok := f.fail[filepath.Base(src)]; ok {
		return imaging.Result{}, err
	}
	if err := os.WriteFile(dst, bytes.Repeat([]byte{'x'}, f.size), 0o644); err != nil {
		return imaging.Result{}, err
	}
	return imaging.Result{Path: dst, Size: int64(f.size)}, nil
}

func (f *fakeDelegate) Resize(_ context.Context, src, dst string, _ int) (imaging.Result, error) {
	return f.write(src, dst)
}

func (f *fakeDelegate) Encode(_ context.Context, src, dst string, _ imaging.Format, _ int) (imaging.Result, error) {
	return f.write(src, dst)
}

func makeSources(t *testing.T, names ...string) []models.FileRecord {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("raster"), 0o644))
	}
	records, err := inventory.Scan(dir, "")
	require.NoError(t, err)
	require.Len(t, records, len(names))
	return records
}

func TestResizeAllPopulatesDerivatives(t *testing.T) {
	records := makeSources(t, "a.tif", "b.jpg")
	out := filepath.Join(t.TempDir(), "resized")
	d := &fakeDelegate{size: 3}

	got, err := ResizeAll(context.Background(), records, d, Options{OutputDir: out, MaxDimension: 1000})
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, rec := range got {
		assert.Equal(t, models.StageDone, rec.Resized.Status)
		assert.Equal(t, int64(3), rec.Resized.Size)
		assert.Equal(t, filepath.Join(out, filepath.Base(rec.Path)), rec.Resized.Path)
		assert.NotEmpty(t, rec.Resized.Checksum)
		assert.Equal(t, models.StageNotRun, records[i].Resized.Status, "input must not be modified")
	}
}

func TestReencodeAllRewritesExtension(t *testing.T) {
	records := makeSources(t, "plan.TIF")
	out := t.TempDir()

	got, err := ReencodeAll(context.Background(), records, &fakeDelegate{size: 2}, Options{
		OutputDir: out,
		Format:    imaging.FormatJPEG,
		Quality:   50,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "plan.jpg"), got[0].Reencoded.Path)
	assert.True(t, got[0].Reencoded.Populated())
	assert.False(t, got[0].Resized.Populated())
}

func TestReencodeKeepsSameStemSourcesApart(t *testing.T) {
	records := makeSources(t, "plan.tif", "plan.jpg", "map.tif")
	out := t.TempDir()

	got, err := ReencodeAll(context.Background(), records, &fakeDelegate{size: 2}, Options{
		OutputDir: out,
		Format:    imaging.FormatJPEG,
		Quality:   75,
	})
	require.NoError(t, err)

	paths := map[string]string{}
	for _, rec := range got {
		require.True(t, rec.Reencoded.Populated(), rec.Path)
		paths[filepath.Base(rec.Path)] = rec.Reencoded.Path
	}
	assert.Equal(t, filepath.Join(out, "plan.tif.jpg"), paths["plan.tif"])
	assert.Equal(t, filepath.Join(out, "plan.jpg.jpg"), paths["plan.jpg"])
	assert.Equal(t, filepath.Join(out, "map.jpg"), paths["map.tif"])

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	r := Report(got)
	assert.Equal(t, 3, r.ReencodedFiles)
	assert.InDelta(t, 6.0/models.BytesPerMB, r.ReencodedMB, 1e-12)
}

func TestResizeRejectsDuplicateOutputNames(t *testing.T) {
	first := makeSources(t, "sheet.tif")
	second := makeSources(t, "sheet.tif")
	records := append(first, second...)
	d := &fakeDelegate{size: 1}

	got, err := ResizeAll(context.Background(), records, d, Options{OutputDir: t.TempDir(), MaxDimension: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputCollision)
	assert.Len(t, d.calls, 1)

	assert.Equal(t, models.StageDone, got[0].Resized.Status)
	assert.Equal(t, models.StageFailed, got[1].Resized.Status)
	assert.Empty(t, got[1].Resized.Path)

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, second[0].Path, batch.Failures[0].Path)
}

func TestStageContinuesPastFailures(t *testing.T) {
	records := makeSources(t, "a.tif", "b.tif", "c.tif")
	d := &fakeDelegate{size: 1, fail: map[string]error{"b.tif": imaging.ErrUnsupportedFormat}}

	got, err := ResizeAll(context.Background(), records, d, Options{OutputDir: t.TempDir(), MaxDimension: 10})
	require.Error(t, err)
	assert.Len(t, d.calls, 3)

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "resize", batch.Stage)
	assert.ErrorIs(t, err, imaging.ErrUnsupportedFormat)

	statuses := map[string]models.StageStatus{}
	for _, rec := range got {
		statuses[filepath.Base(rec.Path)] = rec.Resized.Status
	}
	assert.Equal(t, models.StageDone, statuses["a.tif"])
	assert.Equal(t, models.StageFailed, statuses["b.tif"])
	assert.Equal(t, models.StageDone, statuses["c.tif"])
}

func TestStageStopsOnCancel(t *testing.T) {
	records := makeSources(t, "a.tif")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ResizeAll(ctx, records, &fakeDelegate{size: 1}, Options{OutputDir: t.TempDir(), MaxDimension: 10})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStageRejectsBadOptions(t *testing.T) {
	_, err := ResizeAll(context.Background(), nil, &fakeDelegate{}, Options{OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, imaging.ErrInvalidDimension)

	_, err = ReencodeAll(context.Background(), nil, &fakeDelegate{}, Options{OutputDir: t.TempDir(), Quality: 120})
	assert.ErrorIs(t, err, imaging.ErrInvalidQuality)

	_, err = ResizeAll(context.Background(), nil, &fakeDelegate{}, Options{MaxDimension: 10})
	assert.Error(t, err)
}

func TestReuseTrustsNewerOutputs(t *testing.T) {
	records := makeSources(t, "a.tif", "b.tif")
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "a.tif"), []byte("cached!"), 0o644))

	stale := filepath.Join(out, "b.tif")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	past := records[0].ModTime.Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	d := &fakeDelegate{size: 4}
	got, err := ResizeAll(context.Background(), records, d, Options{OutputDir: out, MaxDimension: 10, Reuse: true})
	require.NoError(t, err)

	byName := map[string]models.Derivative{}
	for _, rec := range got {
		byName[filepath.Base(rec.Path)] = rec.Resized
	}
	assert.Equal(t, models.StageCached, byName["a.tif"].Status)
	assert.Equal(t, int64(7), byName["a.tif"].Size)
	assert.Equal(t, models.StageDone, byName["b.tif"].Status)
	assert.Equal(t, int64(4), byName["b.tif"].Size)
	require.Len(t, d.calls, 1)
	assert.Equal(t, "b.tif", filepath.Base(d.calls[0]))
}

func TestReuseRegeneratesOutputsMadeWithOtherParams(t *testing.T) {
	records := makeSources(t, "a.tif")
	out := t.TempDir()
	d := &fakeDelegate{size: 4}

	got, err := ResizeAll(context.Background(), records, d, Options{OutputDir: out, MaxDimension: 10})
	require.NoError(t, err)
	assert.Equal(t, "max=10", got[0].Resized.Params)

	got, err = ResizeAll(context.Background(), got, d, Options{OutputDir: out, MaxDimension: 20, Reuse: true})
	require.NoError(t, err)
	assert.Equal(t, models.StageDone, got[0].Resized.Status)
	assert.Equal(t, "max=20", got[0].Resized.Params)
	assert.Len(t, d.calls, 2)

	got, err = ResizeAll(context.Background(), got, d, Options{OutputDir: out, MaxDimension: 20, Reuse: true})
	require.NoError(t, err)
	assert.Equal(t, models.StageCached, got[0].Resized.Status)
	assert.Equal(t, "max=20", got[0].Resized.Params)
	assert.Len(t, d.calls, 2)
}

func TestReuseRegeneratesEncodingsAtOtherQuality(t *testing.T) {
	records := makeSources(t, "a.tif")
	out := t.TempDir()
	d := &fakeDelegate{size: 4}

	got, err := ReencodeAll(context.Background(), records, d, Options{OutputDir: out, Quality: 75})
	require.NoError(t, err)
	assert.Equal(t, "jpeg q=75", got[0].Reencoded.Params)

	got, err = ReencodeAll(context.Background(), got, d, Options{OutputDir: out, Quality: 40, Reuse: true})
	require.NoError(t, err)
	assert.Equal(t, models.StageDone, got[0].Reencoded.Status)
	assert.Equal(t, "jpeg q=40", got[0].Reencoded.Params)
	assert.Len(t, d.calls, 2)
}

func TestBatchErrorMessage(t *testing.T) {
	err := &BatchError{Stage: "resize", Failures: []*FileError{{Path: "x.tif", Err: errors.New("boom")}}}
	assert.Equal(t, "resize failed for 1 file(s): x.tif: boom", err.Error())
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x + y), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestResizedOutputsAreSmallerAndRepeatable(t *testing.T) {
	src := t.TempDir()
	writeJPEG(t, filepath.Join(src, "north.jpg"), 400, 180)
	writeJPEG(t, filepath.Join(src, "south.JPG"), 180, 400)
	writeJPEG(t, filepath.Join(src, "tiny.jpg"), 20, 20)

	records, err := inventory.Scan(src, "")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "resized")
	opts := Options{OutputDir: out, MaxDimension: 100}
	first, err := ResizeAll(context.Background(), records, imaging.NewNative(), opts)
	require.NoError(t, err)

	v, err := VerifyResized(first, out, "")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Checked)
	assert.True(t, v.OK(), "%+v", v)

	second, err := ResizeAll(context.Background(), records, imaging.NewNative(), opts)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].Resized.Checksum, second[i].Resized.Checksum)
		assert.Equal(t, first[i].Resized.Size, second[i].Resized.Size)
	}
}

// writeNoisyJPEG writes a deterministic noisy image at a low quality, the
// kind of scan whose re-encoding at a high quality grows.
func writeNoisyJPEG(t *testing.T, path string, w, h, quality int) {
	t.Helper()
	rnd := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(rnd.Intn(256))
			img.Set(x, y, color.RGBA{v, uint8(x), uint8(y), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestResizedLowQualityScanIsNotLarger(t *testing.T) {
	src := t.TempDir()
	writeNoisyJPEG(t, filepath.Join(src, "scan.jpg"), 1100, 800, 40)

	records, err := inventory.Scan(src, "")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "resized")
	got, err := ResizeAll(context.Background(), records, imaging.NewNative(), Options{OutputDir: out, MaxDimension: 1000})
	require.NoError(t, err)
	assert.LessOrEqual(t, got[0].Resized.Size, got[0].Size)

	v, err := VerifyResized(got, out, "")
	require.NoError(t, err)
	assert.Empty(t, v.Larger)
	assert.True(t, v.OK(), "%+v", v)
}

func TestVerifyResizedReportsProblems(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte("12"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.jpg"), []byte("12"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "a.jpg"), []byte("12345"), 0o644))

	records, err := inventory.Scan(src, "")
	require.NoError(t, err)
	for i := range records {
		records[i].Resized.Checksum = "deadbeef"
	}

	v, err := VerifyResized(records, out, "")
	require.NoError(t, err)
	assert.False(t, v.OK())
	assert.Equal(t, []string{filepath.Join(out, "a.jpg")}, v.Larger)
	assert.Equal(t, []string{filepath.Join(out, "a.jpg")}, v.Changed)
	assert.Equal(t, []string{filepath.Join(src, "b.jpg")}, v.Missing)
}
