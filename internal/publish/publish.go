// Package publish uploads a generated tile tree to S3-compatible static hosting.
package publish

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/chmdznr/oldmaps/internal/db"
	"github.com/chmdznr/oldmaps/pkg/models"
	"github.com/chmdznr/oldmaps/pkg/utils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store is the subset of the MinIO client used for publishing
type Store interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher handles tile upload operations
type Publisher struct {
	db           *db.DB
	project      *models.Project
	store        Store
	numWorkers   int
	batchSize    int
	showProgress bool
}

// PublisherConfig holds configuration for the publisher
type PublisherConfig struct {
	NumWorkers   int
	BatchSize    int
	ShowProgress bool
}

// DefaultPublisherConfig returns default publisher configuration
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		NumWorkers: 8,
		BatchSize:  100,
	}
}

// NewClient creates a MinIO client for the project's destination
func NewClient(project *models.Project) (*minio.Client, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(project.Destination.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(project.Destination.AccessKey, project.Destination.SecretKey, ""),
		Secure:       project.Destination.Secure,
		Transport:    tr,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	return client, nil
}

// NewPublisher creates a new publisher instance
func NewPublisher(db *db.DB, project *models.Project, store Store, config *PublisherConfig) *Publisher {
	if config == nil {
		defaultConfig := DefaultPublisherConfig()
		config = &defaultConfig
	}
	workers := config.NumWorkers
	if workers < 1 {
		workers = 1
	}
	batch := config.BatchSize
	if batch < 1 {
		batch = 1
	}

	return &Publisher{
		db:           db,
		project:      project,
		store:        store,
		numWorkers:   workers,
		batchSize:    batch,
		showProgress: config.ShowProgress,
	}
}

// Register walks the project's tile directory and records every file for
// upload. It returns the number of files found.
func (p *Publisher) Register() (int, error) {
	root := p.project.TileDir
	if root == "" {
		return 0, errors.New("project has no tile directory")
	}

	var tiles []models.TileObject
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		tiles = append(tiles, models.TileObject{
			Path:      filepath.ToSlash(rel),
			Size:      info.Size(),
			Timestamp: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan tile directory: %w", err)
	}

	if err := p.db.SaveTileObjectsBatch(p.project.Name, tiles); err != nil {
		return 0, fmt.Errorf("failed to register tiles: %w", err)
	}
	return len(tiles), nil
}

// PrepareBucket creates the destination bucket when missing and grants
// anonymous read access to the project folder so tiles can be served over
// plain HTTP.
func (p *Publisher) PrepareBucket(ctx context.Context) error {
	bucket := p.project.Destination.Bucket
	exists, err := p.store.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := p.store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	if err := p.store.SetBucketPolicy(ctx, bucket, ReadOnlyPolicy(bucket, p.project.Destination.Folder)); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

// ReadOnlyPolicy returns a bucket policy allowing anonymous GetObject on
// the folder prefix.
func ReadOnlyPolicy(bucket, folder string) string {
	prefix := strings.Trim(folder, "/")
	resource := fmt.Sprintf("arn:aws:s3:::%s/*", bucket)
	if prefix != "" {
		resource = fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, prefix)
	}
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["%s"]}]}`, resource)
}

// Summary reports the outcome of a publish run
type Summary struct {
	UploadedFiles int64
	UploadedSize  int64
	FailedFiles   int64
	SkippedFiles  int64
	Duration      time.Duration
}

type publishProgress struct {
	summary Summary
	bar     *pb.ProgressBar
	sync.Mutex
}

func (p *publishProgress) uploaded(size int64) {
	p.Lock()
	defer p.Unlock()
	p.summary.UploadedFiles++
	p.summary.UploadedSize += size
	if p.bar != nil {
		p.bar.Add64(size)
	}
}

func (p *publishProgress) failed(size int64) {
	p.Lock()
	defer p.Unlock()
	p.summary.FailedFiles++
	if p.bar != nil {
		p.bar.Add64(size)
	}
}

func (p *publishProgress) skipped(size int64) {
	p.Lock()
	defer p.Unlock()
	p.summary.SkippedFiles++
	if p.bar != nil {
		p.bar.Add64(size)
	}
}

// Publish uploads every pending or previously failed tile. Failed uploads
// stay recorded as failed and are retried on the next run.
func (p *Publisher) Publish(ctx context.Context) (*Summary, error) {
	tiles, err := p.db.GetPendingTiles(p.project.Name)
	if err != nil {
		return nil, err
	}

	var totalSize int64
	for _, tile := range tiles {
		totalSize += tile.Size
	}

	start := time.Now()
	progress := &publishProgress{}
	if p.showProgress && len(tiles) > 0 {
		progress.bar = pb.New64(totalSize)
		progress.bar.Set(pb.Bytes, true)
		progress.bar.SetTemplateString(`{{counters . }} {{bar . }} {{percent . }} {{speed . }}`)
		progress.bar.Start()
	}

	fmt.Printf("Publishing %d files (%s) to %s/%s\n",
		len(tiles), utils.FormatSize(totalSize), p.project.Destination.Bucket, strings.Trim(p.project.Destination.Folder, "/"))

	jobs := make(chan models.TileObject, p.numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < p.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var completed []string
			flush := func() {
				if len(completed) == 0 {
					return
				}
				if err := p.db.UpdateTileStatusBatch(p.project.Name, completed, models.UploadUploaded); err != nil {
					log.Printf("Failed to update status for %d tiles: %v", len(completed), err)
				}
				completed = completed[:0]
			}
			defer flush()

			for tile := range jobs {
				status := p.upload(ctx, tile)
				switch status {
				case models.UploadUploaded:
					progress.uploaded(tile.Size)
					completed = append(completed, tile.Path)
					if len(completed) >= p.batchSize {
						flush()
					}
					continue
				case models.UploadSkipped:
					progress.skipped(tile.Size)
				default:
					progress.failed(tile.Size)
				}
				if err := p.db.UpdateTileStatus(p.project.Name, tile.Path, status); err != nil {
					log.Printf("Failed to update status for %s: %v", tile.Path, err)
				}
			}
		}()
	}

send:
	for _, tile := range tiles {
		select {
		case jobs <- tile:
		case <-ctx.Done():
			break send
		}
	}
	close(jobs)
	wg.Wait()

	if progress.bar != nil {
		progress.bar.Finish()
	}
	progress.summary.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return &progress.summary, err
	}
	return &progress.summary, nil
}

func (p *Publisher) upload(ctx context.Context, tile models.TileObject) string {
	fullPath := filepath.Join(p.project.TileDir, filepath.FromSlash(tile.Path))

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		log.Printf("Skipping %s: file no longer exists", tile.Path)
		return models.UploadSkipped
	}
	if ctx.Err() != nil {
		return models.UploadFailed
	}

	key := ObjectKey(p.project.Destination.Folder, tile.Path)
	info, err := p.store.FPutObject(ctx, p.project.Destination.Bucket, key, fullPath, minio.PutObjectOptions{
		ContentType:  ContentType(tile.Path),
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		log.Printf("Failed to upload %s to %s/%s: %v", tile.Path, p.project.Destination.Bucket, key, err)
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) {
			log.Printf("  MinIO error %s: %s", minioErr.Code, minioErr.Message)
		}
		return models.UploadFailed
	}

	if info.Size != tile.Size {
		log.Printf("Uploaded size mismatch for %s: expected %d bytes, got %d", tile.Path, tile.Size, info.Size)
		return models.UploadFailed
	}
	return models.UploadUploaded
}

// ObjectKey joins the destination folder and a tile path into an object
// key with forward slashes and no empty segments.
func ObjectKey(folder, path string) string {
	joined := strings.ReplaceAll(folder+"/"+path, "\\", "/")

	segments := strings.Split(joined, "/")
	kept := segments[:0]
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "/")
}

var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".html": "text/html; charset=utf-8",
	".xml":  "application/xml",
	".json": "application/json",
	".js":   "application/javascript",
	".css":  "text/css",
	".kml":  "application/vnd.google-earth.kml+xml",
}

// ContentType returns the MIME type served for a tile tree file.
func ContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
