// Package pipeline runs the resize and re-encode stages over an inventory
// and reports the resulting compression.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/chmdznr/oldmaps/internal/imaging"
	"github.com/chmdznr/oldmaps/internal/inventory"
	"github.com/chmdznr/oldmaps/pkg/models"
)

// Options configures one stage run
type Options struct {
	OutputDir string
	// MaxDimension bounds width and height for ResizeAll.
	MaxDimension int
	// Format and Quality apply to ReencodeAll.
	Format  imaging.Format
	Quality int
	// Reuse trusts an existing output that is newer than its source instead
	// of invoking the delegate again. An output recorded with different stage
	// parameters is always regenerated.
	Reuse        bool
	ShowProgress bool
}

// ErrOutputCollision is recorded for a file whose output name is already
// taken by another file of the same run.
var ErrOutputCollision = errors.New("output name collides with another file")

// FileError is the failure of one file within a stage
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// BatchError collects the per-file failures of a stage. The stage itself
// ran to completion.
type BatchError struct {
	Stage    string
	Failures []*FileError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s failed for %d file(s): %s", e.Stage, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every per-file error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

type stageFunc func(ctx context.Context, src, dst string) (imaging.Result, error)

type stage struct {
	name          string
	outName       func(src string) string
	// qualifiedName, if set, is used for sources whose outName clashes.
	qualifiedName func(src string) string
	params        string
	run           stageFunc
	get           func(*models.FileRecord) *models.Derivative
}

// ResizeAll scales every record through r into opts.OutputDir, mirroring the
// original file names. It returns a new slice; records is not modified.
// Per-file failures do not stop the batch and are returned as *BatchError
// alongside the updated records.
func ResizeAll(ctx context.Context, records []models.FileRecord, r imaging.Resizer, opts Options) ([]models.FileRecord, error) {
	if opts.MaxDimension <= 0 {
		return nil, imaging.ErrInvalidDimension
	}
	s := stage{
		name:    "resize",
		outName: filepath.Base,
		params:  fmt.Sprintf("max=%d", opts.MaxDimension),
		run: func(ctx context.Context, src, dst string) (imaging.Result, error) {
			return r.Resize(ctx, src, dst, opts.MaxDimension)
		},
		get: func(rec *models.FileRecord) *models.Derivative { return &rec.Resized },
	}
	return runStage(ctx, records, s, opts)
}

// ReencodeAll writes a copy of every record in opts.Format at opts.Quality
// into opts.OutputDir with the extension rewritten to match the format.
// Sources that would share a name, such as plan.tif and plan.jpg, keep
// their own extension in front of the new one (plan.tif.jpg).
func ReencodeAll(ctx context.Context, records []models.FileRecord, e imaging.Encoder, opts Options) ([]models.FileRecord, error) {
	if opts.Quality < 0 || opts.Quality > 100 {
		return nil, imaging.ErrInvalidQuality
	}
	format := opts.Format
	if format == "" {
		format = imaging.FormatJPEG
	}
	s := stage{
		name: "reencode",
		outName: func(src string) string {
			return imaging.ReencodedName(src, format)
		},
		qualifiedName: func(src string) string {
			return imaging.QualifiedName(src, format)
		},
		params: fmt.Sprintf("%s q=%d", format, opts.Quality),
		run: func(ctx context.Context, src, dst string) (imaging.Result, error) {
			return e.Encode(ctx, src, dst, format, opts.Quality)
		},
		get: func(rec *models.FileRecord) *models.Derivative { return &rec.Reencoded },
	}
	return runStage(ctx, records, s, opts)
}

func runStage(ctx context.Context, records []models.FileRecord, s stage, opts Options) ([]models.FileRecord, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	out := make([]models.FileRecord, len(records))
	copy(out, records)

	var bar *pb.ProgressBar
	if opts.ShowProgress {
		bar = pb.New(len(out))
		bar.SetTemplateString(`{{string . "stage"}} {{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
		bar.Set("stage", s.name)
		bar.Start()
		defer bar.Finish()
	}

	dsts, clashes := outputPaths(out, s, opts.OutputDir)

	var failures []*FileError
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := &out[i]
		var d models.Derivative
		err := clashes[i]
		if err != nil {
			d = models.Derivative{Status: models.StageFailed, Error: err.Error()}
		} else {
			d, err = process(ctx, rec, dsts[i], s, opts.Reuse)
			if err != nil && ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		*s.get(rec) = d
		if err != nil {
			log.Printf("%s failed for %s: %v", s.name, rec.Path, err)
			failures = append(failures, &FileError{Path: rec.Path, Err: err})
		}
		if bar != nil {
			bar.Increment()
		}
	}

	if len(failures) > 0 {
		return out, &BatchError{Stage: s.name, Failures: failures}
	}
	return out, nil
}

// outputPaths assigns every record its destination in dir. Records whose
// names clash get their qualified name; a record that still clashes with an
// earlier one gets an error wrapping ErrOutputCollision instead.
func outputPaths(records []models.FileRecord, s stage, dir string) ([]string, []error) {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = s.outName(rec.Path)
	}

	if s.qualifiedName != nil {
		counts := make(map[string]int, len(names))
		for _, n := range names {
			counts[nameKey(n)]++
		}
		for i, rec := range records {
			if counts[nameKey(names[i])] > 1 {
				names[i] = s.qualifiedName(rec.Path)
			}
		}
	}

	paths := make([]string, len(records))
	errs := make([]error, len(records))
	owner := make(map[string]string, len(records))
	for i, rec := range records {
		key := nameKey(names[i])
		if prev, ok := owner[key]; ok {
			errs[i] = fmt.Errorf("%w: %s is also written for %s", ErrOutputCollision, names[i], prev)
			continue
		}
		owner[key] = rec.Path
		paths[i] = filepath.Join(dir, names[i])
	}
	return paths, errs
}

// nameKey folds case so that names differing only in case clash, as they
// would on case-insensitive file systems.
func nameKey(name string) string {
	return strings.ToLower(name)
}

func process(ctx context.Context, rec *models.FileRecord, dst string, s stage, reuse bool) (models.Derivative, error) {
	if reuse {
		if d, ok := cached(rec, dst, s); ok {
			return d, nil
		}
	}

	res, err := s.run(ctx, rec.Path, dst)
	if err != nil {
		return models.Derivative{Path: dst, Status: models.StageFailed, Error: err.Error()}, err
	}

	sum, err := inventory.Checksum(res.Path)
	if err != nil {
		return models.Derivative{Path: dst, Status: models.StageFailed, Error: err.Error()}, err
	}
	return models.Derivative{Path: res.Path, Size: res.Size, Status: models.StageDone, Checksum: sum, Params: s.params}, nil
}

// cached returns the existing derivative at dst when it is at least as new
// as the source. An output this record last produced at dst with other
// parameters is not reused. Outputs with no recorded parameters, such as
// those left by an earlier tool, are trusted on age alone.
func cached(rec *models.FileRecord, dst string, s stage) (models.Derivative, bool) {
	prev := s.get(rec)
	if prev.Path == dst && prev.Params != "" && prev.Params != s.params {
		return models.Derivative{}, false
	}

	info, err := os.Stat(dst)
	if err != nil || info.IsDir() {
		return models.Derivative{}, false
	}
	if !rec.ModTime.IsZero() && info.ModTime().Before(rec.ModTime) {
		return models.Derivative{}, false
	}
	sum, err := inventory.Checksum(dst)
	if err != nil {
		return models.Derivative{}, false
	}
	return models.Derivative{Path: dst, Size: info.Size(), Status: models.StageCached, Checksum: sum, Params: s.params}, true
}
