package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chmdznr/oldmaps/pkg/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrProjectNotFound is returned when no project with the given name exists.
var ErrProjectNotFound = errors.New("project not found")

// DB represents a database connection
type DB struct {
	*sql.DB
}

// New opens the database of a project, stored as <project>.db in the
// working directory.
func New(projectName string) (*DB, error) {
	return Open(fmt.Sprintf("%s.db", projectName))
}

// Open opens or creates a database at path and makes sure the schema exists.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			name TEXT PRIMARY KEY,
			source_path TEXT,
			resized_dir TEXT,
			encoded_dir TEXT,
			georef_dir TEXT,
			tile_dir TEXT,
			endpoint TEXT,
			bucket TEXT,
			folder TEXT,
			access_key TEXT,
			secret_key TEXT,
			secure INTEGER DEFAULT 1,
			public_url TEXT
		);
		CREATE TABLE IF NOT EXISTS files (
			project_name TEXT,
			file_path TEXT,
			size INTEGER,
			timestamp DATETIME,
			resized_path TEXT DEFAULT '',
			resized_size INTEGER DEFAULT 0,
			resized_status TEXT DEFAULT '',
			resized_error TEXT DEFAULT '',
			resized_checksum TEXT DEFAULT '',
			resized_params TEXT DEFAULT '',
			encoded_path TEXT DEFAULT '',
			encoded_size INTEGER DEFAULT 0,
			encoded_status TEXT DEFAULT '',
			encoded_error TEXT DEFAULT '',
			encoded_checksum TEXT DEFAULT '',
			encoded_params TEXT DEFAULT '',
			PRIMARY KEY (project_name, file_path)
		);
		CREATE TABLE IF NOT EXISTS tiles (
			project_name TEXT,
			tile_path TEXT,
			size INTEGER,
			timestamp DATETIME,
			upload_status TEXT,
			PRIMARY KEY (project_name, tile_path)
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			project_name TEXT,
			stage TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			files INTEGER DEFAULT 0,
			failures INTEGER DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_files_size ON files(project_name, size);
		CREATE INDEX IF NOT EXISTS idx_tiles_status ON tiles(project_name, upload_status);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	if err != nil {
		return err
	}

	// Databases created before stage parameters were recorded.
	for _, col := range []string{"resized_params", "encoded_params"} {
		if err := db.addColumn("files", col, "TEXT DEFAULT ''"); err != nil {
			return err
		}
	}
	return nil
}

// addColumn adds column to table unless it already exists.
func (db *DB) addColumn(table, column, definition string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// GetProject retrieves a project by name
func (db *DB) GetProject(name string) (*models.Project, error) {
	var project models.Project
	err := db.QueryRow(`
		SELECT name, source_path, resized_dir, encoded_dir, georef_dir, tile_dir,
			endpoint, bucket, folder, access_key, secret_key, secure, public_url
		FROM projects WHERE name = ?
	`, name).Scan(
		&project.Name,
		&project.SourcePath,
		&project.ResizedDir,
		&project.EncodedDir,
		&project.GeorefDir,
		&project.TileDir,
		&project.Destination.Endpoint,
		&project.Destination.Bucket,
		&project.Destination.Folder,
		&project.Destination.AccessKey,
		&project.Destination.SecretKey,
		&project.Destination.Secure,
		&project.Destination.PublicURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrProjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", name, err)
	}
	return &project, nil
}

// CreateProject creates a new project
func (db *DB) CreateProject(project *models.Project) error {
	_, err := db.Exec(`
		INSERT INTO projects (name, source_path, resized_dir, encoded_dir, georef_dir, tile_dir,
			endpoint, bucket, folder, access_key, secret_key, secure, public_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		project.Name,
		project.SourcePath,
		project.ResizedDir,
		project.EncodedDir,
		project.GeorefDir,
		project.TileDir,
		project.Destination.Endpoint,
		project.Destination.Bucket,
		project.Destination.Folder,
		project.Destination.AccessKey,
		project.Destination.SecretKey,
		project.Destination.Secure,
		project.Destination.PublicURL,
	)
	return err
}

// ReplaceInventory stores the result of a scan. Files whose size and
// modification time are unchanged keep their recorded derivatives; changed
// files are reset, and files no longer present are removed.
func (db *DB) ReplaceInventory(projectName string, records []models.FileRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	type key struct {
		size int64
		mod  time.Time
	}
	existing := make(map[string]key)
	rows, err := tx.Query(`SELECT file_path, size, timestamp FROM files WHERE project_name = ?`, projectName)
	if err != nil {
		return err
	}
	for rows.Next() {
		var path string
		var k key
		if err := rows.Scan(&path, &k.size, &k.mod); err != nil {
			rows.Close()
			return err
		}
		existing[path] = k
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	insert, err := tx.Prepare(`
		INSERT OR REPLACE INTO files (project_name, file_path, size, timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer insert.Close()

	for _, r := range records {
		k, ok := existing[r.Path]
		delete(existing, r.Path)
		if ok && k.size == r.Size && k.mod.Equal(r.ModTime) {
			continue
		}
		if _, err := insert.Exec(projectName, r.Path, r.Size, r.ModTime); err != nil {
			return err
		}
	}

	for path := range existing {
		if _, err := tx.Exec(`DELETE FROM files WHERE project_name = ? AND file_path = ?`, projectName, path); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetFileRecords returns the project's inventory, largest file first
func (db *DB) GetFileRecords(projectName string) ([]models.FileRecord, error) {
	rows, err := db.Query(`
		SELECT file_path, size, timestamp,
			resized_path, resized_size, resized_status, resized_error, resized_checksum, resized_params,
			encoded_path, encoded_size, encoded_status, encoded_error, encoded_checksum, encoded_params
		FROM files
		WHERE project_name = ?
		ORDER BY size DESC, file_path ASC
	`, projectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		var r models.FileRecord
		var resizedStatus, encodedStatus string
		err = rows.Scan(
			&r.Path, &r.Size, &r.ModTime,
			&r.Resized.Path, &r.Resized.Size, &resizedStatus, &r.Resized.Error, &r.Resized.Checksum, &r.Resized.Params,
			&r.Reencoded.Path, &r.Reencoded.Size, &encodedStatus, &r.Reencoded.Error, &r.Reencoded.Checksum, &r.Reencoded.Params,
		)
		if err != nil {
			return nil, err
		}
		r.Resized.Status = models.StageStatus(resizedStatus)
		r.Reencoded.Status = models.StageStatus(encodedStatus)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveFileRecordsBatch saves multiple file records in a single transaction
func (db *DB) SaveFileRecordsBatch(projectName string, records []models.FileRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO files (project_name, file_path, size, timestamp,
			resized_path, resized_size, resized_status, resized_error, resized_checksum, resized_params,
			encoded_path, encoded_size, encoded_status, encoded_error, encoded_checksum, encoded_params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.Exec(
			projectName, r.Path, r.Size, r.ModTime,
			r.Resized.Path, r.Resized.Size, string(r.Resized.Status), r.Resized.Error, r.Resized.Checksum, r.Resized.Params,
			r.Reencoded.Path, r.Reencoded.Size, string(r.Reencoded.Status), r.Reencoded.Error, r.Reencoded.Checksum, r.Reencoded.Params,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveTileObjectsBatch registers tile files. Files already uploaded with the
// same size keep their status; everything else becomes pending.
func (db *DB) SaveTileObjectsBatch(projectName string, tiles []models.TileObject) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO tiles (project_name, tile_path, size, timestamp, upload_status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_name, tile_path) DO UPDATE SET
			upload_status = CASE
				WHEN tiles.size = excluded.size AND tiles.upload_status = 'uploaded' THEN tiles.upload_status
				ELSE excluded.upload_status
			END,
			size = excluded.size,
			timestamp = excluded.timestamp
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tile := range tiles {
		status := tile.UploadStatus
		if status == "" {
			status = models.UploadPending
		}
		if _, err = stmt.Exec(projectName, tile.Path, tile.Size, tile.Timestamp, status); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetPendingTiles retrieves tiles that still need uploading, including
// earlier failures.
func (db *DB) GetPendingTiles(projectName string) ([]models.TileObject, error) {
	rows, err := db.Query(`
		SELECT tile_path, size, upload_status
		FROM tiles
		WHERE project_name = ? AND upload_status IN ('pending', 'failed')
		ORDER BY size DESC, tile_path ASC
	`, projectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiles []models.TileObject
	for rows.Next() {
		var tile models.TileObject
		if err = rows.Scan(&tile.Path, &tile.Size, &tile.UploadStatus); err != nil {
			return nil, err
		}
		tiles = append(tiles, tile)
	}
	return tiles, rows.Err()
}

// UpdateTileStatus updates the status of a tile
func (db *DB) UpdateTileStatus(projectName, tilePath, status string) error {
	_, err := db.Exec(`
		UPDATE tiles
		SET upload_status = ?
		WHERE project_name = ? AND tile_path = ?
	`, status, projectName, tilePath)
	return err
}

// UpdateTileStatusBatch updates the status of multiple tiles in a single transaction
func (db *DB) UpdateTileStatusBatch(projectName string, tilePaths []string, status string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE tiles
		SET upload_status = ?
		WHERE project_name = ? AND tile_path = ?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tilePath := range tilePaths {
		if _, err = stmt.Exec(status, projectName, tilePath); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetStats returns statistics about files and tiles in the project
func (db *DB) GetStats(projectName string) (*models.Stats, error) {
	var stats models.Stats
	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(size), 0),
			COUNT(CASE WHEN resized_status IN ('done', 'cached') THEN 1 END),
			COALESCE(SUM(CASE WHEN resized_status IN ('done', 'cached') THEN resized_size ELSE 0 END), 0),
			COUNT(CASE WHEN encoded_status IN ('done', 'cached') THEN 1 END),
			COALESCE(SUM(CASE WHEN encoded_status IN ('done', 'cached') THEN encoded_size ELSE 0 END), 0),
			COUNT(CASE WHEN resized_status = 'failed' OR encoded_status = 'failed' THEN 1 END)
		FROM files
		WHERE project_name = ?
	`, projectName).Scan(
		&stats.TotalFiles,
		&stats.TotalSize,
		&stats.ResizedFiles,
		&stats.ResizedSize,
		&stats.ReencodedFiles,
		&stats.ReencodedSize,
		&stats.FailedFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats: %w", err)
	}

	err = db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(size), 0),
			COUNT(CASE WHEN upload_status = 'uploaded' THEN 1 END),
			COALESCE(SUM(CASE WHEN upload_status = 'uploaded' THEN size ELSE 0 END), 0),
			COUNT(CASE WHEN upload_status = 'pending' THEN 1 END),
			COALESCE(SUM(CASE WHEN upload_status = 'pending' THEN size ELSE 0 END), 0),
			COUNT(CASE WHEN upload_status = 'failed' THEN 1 END),
			COUNT(CASE WHEN upload_status = 'skipped' THEN 1 END)
		FROM tiles
		WHERE project_name = ?
	`, projectName).Scan(
		&stats.TotalTiles,
		&stats.TotalTileSize,
		&stats.UploadedTiles,
		&stats.UploadedSize,
		&stats.PendingTiles,
		&stats.PendingSize,
		&stats.FailedTiles,
		&stats.SkippedTiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get tile stats: %w", err)
	}
	return &stats, nil
}

// StartRun records the start of a stage and returns its id.
func (db *DB) StartRun(projectName, stage string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO runs (id, project_name, stage, started_at)
		VALUES (?, ?, ?, ?)
	`, id, projectName, stage, time.Now())
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun records the end of a stage.
func (db *DB) FinishRun(id string, files, failures int) error {
	_, err := db.Exec(`
		UPDATE runs SET finished_at = ?, files = ?, failures = ? WHERE id = ?
	`, time.Now(), files, failures, id)
	return err
}

// GetRuns lists the runs of a project, most recent first.
func (db *DB) GetRuns(projectName string) ([]models.Run, error) {
	rows, err := db.Query(`
		SELECT id, stage, started_at, finished_at, files, failures
		FROM runs
		WHERE project_name = ?
		ORDER BY started_at DESC
	`, projectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var r models.Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Stage, &r.StartedAt, &finished, &r.Files, &r.Failures); err != nil {
			return nil, err
		}
		r.FinishedAt = finished.Time
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
