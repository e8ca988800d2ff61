package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chmdznr/oldmaps/internal/db"
	"github.com/chmdznr/oldmaps/pkg/models"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		folder   string
		input    string
		expected string
	}{
		{
			name:     "normal path",
			folder:   "maps/",
			input:    "12/2200/1343.png",
			expected: "maps/12/2200/1343.png",
		},
		{
			name:     "windows path",
			folder:   "maps",
			input:    "12\\2200\\1343.png",
			expected: "maps/12/2200/1343.png",
		},
		{
			name:     "path with double slashes",
			folder:   "/maps//1890/",
			input:    "/leaflet.html",
			expected: "maps/1890/leaflet.html",
		},
		{
			name:     "no folder",
			folder:   "",
			input:    "0/0/0.png",
			expected: "0/0/0.png",
		},
		{
			name:     "empty path",
			folder:   "",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ObjectKey(tt.folder, tt.input)
			if result != tt.expected {
				t.Errorf("ObjectKey(%q, %q) = %q; want %q", tt.folder, tt.input, result, tt.expected)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("1/0/0.png"))
	assert.Equal(t, "image/jpeg", ContentType("1/0/0.JPG"))
	assert.Equal(t, "text/html; charset=utf-8", ContentType("leaflet.html"))
	assert.Equal(t, "application/octet-stream", ContentType("README"))
}

func TestReadOnlyPolicy(t *testing.T) {
	assert.Contains(t, ReadOnlyPolicy("maps", "/survey/"), `"arn:aws:s3:::maps/survey/*"`)
	assert.Contains(t, ReadOnlyPolicy("maps", ""), `"arn:aws:s3:::maps/*"`)
}

type fakeStore struct {
	mu      sync.Mutex
	buckets map[string]bool
	policy  string
	objects map[string]minio.PutObjectOptions
	fail    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		buckets: map[string]bool{},
		objects: map[string]minio.PutObjectOptions{},
		fail:    map[string]bool{},
	}
}

func (f *fakeStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[bucket], nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket] = true
	return nil
}

func (f *fakeStore) SetBucketPolicy(_ context.Context, _ string, policy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = policy
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, bucket, key, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[key] {
		return minio.UploadInfo{}, errors.New("connection reset")
	}
	info, err := os.Stat(path)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+key] = opts
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: info.Size()}, nil
}

func setupProject(t *testing.T) (*db.DB, *models.Project) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	tiles := t.TempDir()
	for _, p := range []string{"0/0/0.png", "1/0/0.png", "1/1/0.png", "leaflet.html"} {
		full := filepath.Join(tiles, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(strings.Repeat("t", len(p))), 0o644))
	}

	project := &models.Project{Name: "survey", TileDir: tiles}
	project.Destination.Bucket = "maps"
	project.Destination.Folder = "survey/"
	require.NoError(t, database.CreateProject(project))
	return database, project
}

func TestPublishUploadsAndResumes(t *testing.T) {
	database, project := setupProject(t)
	store := newFakeStore()
	store.fail["survey/1/1/0.png"] = true

	pub := NewPublisher(database, project, store, &PublisherConfig{NumWorkers: 3, BatchSize: 2})
	n, err := pub.Register()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, pub.PrepareBucket(context.Background()))
	assert.True(t, store.buckets["maps"])
	assert.Contains(t, store.policy, "maps/survey/*")

	summary, err := pub.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.UploadedFiles)
	assert.Equal(t, int64(1), summary.FailedFiles)
	assert.Equal(t, "text/html; charset=utf-8", store.objects["maps/survey/leaflet.html"].ContentType)
	assert.Equal(t, "image/png", store.objects["maps/survey/0/0/0.png"].ContentType)

	stats, err := database.GetStats(project.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.UploadedTiles)
	assert.Equal(t, int64(1), stats.FailedTiles)

	// The second run only retries the failure.
	delete(store.fail, "survey/1/1/0.png")
	_, err = pub.Register()
	require.NoError(t, err)
	summary, err = pub.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.UploadedFiles)
	assert.Zero(t, summary.FailedFiles)

	stats, err = database.GetStats(project.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.UploadedTiles)
}

func TestPublishSkipsVanishedFiles(t *testing.T) {
	database, project := setupProject(t)
	pub := NewPublisher(database, project, newFakeStore(), nil)
	_, err := pub.Register()
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(project.TileDir, "leaflet.html")))

	summary, err := pub.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.UploadedFiles)
	assert.Equal(t, int64(1), summary.SkippedFiles)

	stats, err := database.GetStats(project.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SkippedTiles)
}

func TestRegisterNeedsTileDir(t *testing.T) {
	database, project := setupProject(t)
	project.TileDir = ""
	_, err := NewPublisher(database, project, newFakeStore(), nil).Register()
	assert.Error(t, err)
}
