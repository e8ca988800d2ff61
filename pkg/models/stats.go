package models

// Stats represents project statistics
type Stats struct {
	TotalFiles     int64
	TotalSize      int64
	ResizedFiles   int64
	ResizedSize    int64
	ReencodedFiles int64
	ReencodedSize  int64
	FailedFiles    int64

	TotalTiles    int64
	TotalTileSize int64
	UploadedTiles int64
	UploadedSize  int64
	PendingTiles  int64
	PendingSize   int64
	FailedTiles   int64
	SkippedTiles  int64
}

// Report holds aggregate size statistics over a set of file records.
// Derivative sums only include populated derivatives.
type Report struct {
	Files          int
	ResizedFiles   int
	ReencodedFiles int

	OriginalMB  float64
	ResizedMB   float64
	ReencodedMB float64

	// Original size of the records that have the corresponding derivative.
	ResizedOriginalMB   float64
	ReencodedOriginalMB float64

	ResizeRatio      float64
	ReencodeRatio    float64
	HasResizeRatio   bool
	HasReencodeRatio bool
}
