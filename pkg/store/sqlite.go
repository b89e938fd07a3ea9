package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tader68/spdata/pkg/models"
)

// SQLiteStore keeps snapshots in a single database file. Each checkpoint is
// stored as a JSON blob next to a few indexed columns for listing; SQLite's
// transactional writes give the same torn-read guarantee the file backend
// gets from rename.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and ensures the schema
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer keeps checkpoint ordering simple
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveJob upserts the full job snapshot
func (s *SQLiteStore) SaveJob(job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO jobs (id, kind, status, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		job.ID, string(job.Kind), string(job.Status), string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// LoadJob reads a snapshot by id, or ErrJobNotFound
func (s *SQLiteStore) LoadJob(id string) (*models.Job, error) {
	var snapshot string
	err := s.db.QueryRow("SELECT snapshot FROM jobs WHERE id = ?", id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal([]byte(snapshot), &job); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", id, err)
	}
	return &job, nil
}

// ListJobs returns every persisted job snapshot
func (s *SQLiteStore) ListJobs() ([]*models.Job, error) {
	rows, err := s.db.Query("SELECT snapshot FROM jobs ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, err
		}
		var job models.Job
		if err := json.Unmarshal([]byte(snapshot), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes the checkpoint for a job id
func (s *SQLiteStore) DeleteJob(id string) error {
	res, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SaveProject upserts a project artifact
func (s *SQLiteStore) SaveProject(p *models.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO projects (id, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		p.ID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// LoadProject reads a project by id
func (s *SQLiteStore) LoadProject(id string) (*models.Project, error) {
	var snapshot string
	err := s.db.QueryRow("SELECT snapshot FROM projects WHERE id = ?", id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	var p models.Project
	if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", id, err)
	}
	return &p, nil
}

// ListProjects returns all project artifacts
func (s *SQLiteStore) ListProjects() ([]*models.Project, error) {
	rows, err := s.db.Query("SELECT snapshot FROM projects ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, err
		}
		var p models.Project
		if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
			continue
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project artifact
func (s *SQLiteStore) DeleteProject(id string) error {
	res, err := s.db.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
