// Package catalog records conversion outcomes in sqlite: which cubes were
// converted, where their volumes landed, and which failed with what error.
// A batch run consults it afterwards instead of re-running anything.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/seisvol/seisvol/pkg/logger"
)

const (
	StatusPending    = "pending"
	StatusConverting = "converting"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

type Cube struct {
	ID         string
	SourcePath string
	VolumePath string
	Status     string
	Error      string
	Inlines    int
	Crosslines int
	Samples    int
	DeadCells  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failed     int
}

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("Catalog opened", zap.String("path", dbPath))
	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cubes (
		id TEXT PRIMARY KEY,
		source_path TEXT UNIQUE NOT NULL,
		volume_path TEXT,
		status TEXT NOT NULL,
		error TEXT,
		inlines INTEGER,
		crosslines INTEGER,
		samples INTEGER,
		dead_cells INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cubes_status ON cubes(status);

	CREATE TABLE IF NOT EXISTS conversion_runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		total INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return nil
}

// UpsertCube registers a cube before conversion starts; a re-run of the
// same source path reuses the existing row. Returns the row's effective
// id, which on a re-run is the original id, not cube.ID.
func (c *Client) UpsertCube(cube *Cube) (string, error) {
	now := time.Now()
	_, err := c.db.Exec(`
		INSERT INTO cubes (id, source_path, volume_path, status, error, inlines, crosslines, samples, dead_cells, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		cube.ID, cube.SourcePath, cube.VolumePath, cube.Status, cube.Error,
		cube.Inlines, cube.Crosslines, cube.Samples, cube.DeadCells,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert cube: %w", err)
	}

	var id string
	if err := c.db.QueryRow(`SELECT id FROM cubes WHERE source_path = ?`, cube.SourcePath).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to resolve cube id: %w", err)
	}
	return id, nil
}

func (c *Client) UpdateCube(sourcePath, status, volumePath, errMsg string, geom *Cube) error {
	query := `UPDATE cubes SET status = ?, volume_path = ?, error = ?, updated_at = ?`
	args := []interface{}{status, volumePath, errMsg, time.Now().Unix()}
	if geom != nil {
		query += `, inlines = ?, crosslines = ?, samples = ?, dead_cells = ?`
		args = append(args, geom.Inlines, geom.Crosslines, geom.Samples, geom.DeadCells)
	}
	query += ` WHERE source_path = ?`
	args = append(args, sourcePath)

	if _, err := c.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update cube: %w", err)
	}
	return nil
}

func (c *Client) GetCube(id string) (*Cube, error) {
	row := c.db.QueryRow(`
		SELECT id, source_path, volume_path, status, error, inlines, crosslines, samples, dead_cells, created_at, updated_at
		FROM cubes WHERE id = ?`, id)
	return scanCube(row)
}

func (c *Client) ListCubes() ([]*Cube, error) {
	rows, err := c.db.Query(`
		SELECT id, source_path, volume_path, status, error, inlines, crosslines, samples, dead_cells, created_at, updated_at
		FROM cubes ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cubes: %w", err)
	}
	defer rows.Close()

	var cubes []*Cube
	for rows.Next() {
		cube, err := scanCube(rows)
		if err != nil {
			return nil, err
		}
		cubes = append(cubes, cube)
	}
	return cubes, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCube(row scanner) (*Cube, error) {
	var cube Cube
	var volumePath, errMsg sql.NullString
	var created, updated int64
	err := row.Scan(&cube.ID, &cube.SourcePath, &volumePath, &cube.Status, &errMsg,
		&cube.Inlines, &cube.Crosslines, &cube.Samples, &cube.DeadCells, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cube: %w", err)
	}
	cube.VolumePath = volumePath.String
	cube.Error = errMsg.String
	cube.CreatedAt = time.Unix(created, 0)
	cube.UpdatedAt = time.Unix(updated, 0)
	return &cube, nil
}

func (c *Client) RecordRun(run *Run) error {
	_, err := c.db.Exec(`
		INSERT INTO conversion_runs (id, started_at, finished_at, total, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Total, run.Succeeded, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}
