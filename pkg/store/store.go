package store

import (
	"errors"

	"github.com/tader68/spdata/pkg/models"
)

var (
	// ErrJobNotFound is returned when no checkpoint exists for a job id
	ErrJobNotFound = errors.New("job not found")
	// ErrProjectNotFound is returned when a project artifact does not exist
	ErrProjectNotFound = errors.New("project not found")
	// ErrUnsupportedBackend is returned for unknown store types
	ErrUnsupportedBackend = errors.New("unsupported store backend")
)

// Store persists job checkpoints and project groupings. A job's snapshot is
// written after every processed row or batch, so whatever backend implements
// this must make each write atomic: a reader (status polling, resume after
// crash) must never observe a half-written snapshot.
type Store interface {
	// SaveJob durably writes the full job snapshot
	SaveJob(job *models.Job) error
	// LoadJob reads a snapshot by id, or ErrJobNotFound
	LoadJob(id string) (*models.Job, error)
	// ListJobs returns all persisted snapshots
	ListJobs() ([]*models.Job, error)
	// DeleteJob removes a checkpoint; this is the only way a job dies
	DeleteJob(id string) error

	// Project grouping artifacts
	SaveProject(p *models.Project) error
	LoadProject(id string) (*models.Project, error)
	ListProjects() ([]*models.Project, error)
	DeleteProject(id string) error

	Close() error
}

// Config holds persistence configuration
type Config struct {
	Type string // "file" or "sqlite"
	// File backend
	Dir string
	// SQLite backend
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "sqlite":
		path := config.Path
		if path == "" {
			path = "spdata.db"
		}
		return NewSQLiteStore(path)
	case "file", "":
		dir := config.Dir
		if dir == "" {
			dir = "results"
		}
		return NewFileStore(dir)
	default:
		return nil, ErrUnsupportedBackend
	}
}
