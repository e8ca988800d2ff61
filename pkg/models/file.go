package models

import "time"

// StageStatus describes the outcome of one processing stage for one file
type StageStatus string

const (
	StageNotRun StageStatus = ""
	StageDone   StageStatus = "done"
	StageCached StageStatus = "cached"
	StageFailed StageStatus = "failed"
)

// Derivative is a file produced from an original raster by a processing stage
type Derivative struct {
	Path     string
	Size     int64
	Status   StageStatus
	Error    string
	Checksum string
	// Params records the stage settings the file was produced with.
	Params   string
}

// Populated reports whether the derivative exists on disk with a known size.
func (d Derivative) Populated() bool {
	return d.Status == StageDone || d.Status == StageCached
}

// SizeMB returns the derivative size in megabytes (1 MB = 1,000,000 bytes).
func (d Derivative) SizeMB() float64 {
	return float64(d.Size) / BytesPerMB
}

// BytesPerMB is the divisor used for every megabyte figure in reports.
const BytesPerMB = 1_000_000

// FileRecord represents one discovered raster and its derivatives
type FileRecord struct {
	Path      string
	Size      int64
	ModTime   time.Time
	Resized   Derivative
	Reencoded Derivative
}

// SizeMB returns the original size in megabytes.
func (r FileRecord) SizeMB() float64 {
	return float64(r.Size) / BytesPerMB
}
