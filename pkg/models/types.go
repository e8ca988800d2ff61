package models

import "time"

// Upload states for tile objects
const (
	UploadPending  = "pending"
	UploadUploaded = "uploaded"
	UploadFailed   = "failed"
	UploadSkipped  = "skipped"
)

// TileObject is one file of a generated tile tree, tracked for upload
type TileObject struct {
	Path         string
	Size         int64
	Timestamp    time.Time
	UploadStatus string
}

type Project struct {
	Name       string
	SourcePath string
	ResizedDir string
	EncodedDir string
	GeorefDir  string
	TileDir    string
	Destination struct {
		Endpoint  string
		Bucket    string
		Folder    string
		AccessKey string
		SecretKey string
		Secure    bool
		PublicURL string
	}
}

// Run records one execution of a processing stage
type Run struct {
	ID         string
	Stage      string
	StartedAt  time.Time
	FinishedAt time.Time
	Files      int
	Failures   int
}
