package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tader68/spdata/pkg/models"
)

// FileStore keeps each checkpoint as a standalone JSON file so operators can
// inspect or copy partial results with normal shell tools. Job artifacts are
// named <kind>_<id>.json, projects project_<id>.json.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the directory if needed and returns a file-backed store
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) jobPath(kind models.JobKind, id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", kind, id))
}

func (s *FileStore) projectPath(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("project_%s.json", id))
}

// writeAtomic writes to a temp file in the same directory, then renames it
// over the target. Rename within one filesystem is atomic, so a concurrent
// reader sees either the previous snapshot or the new one, never a torn file.
func (s *FileStore) writeAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// SaveJob writes the job snapshot atomically
func (s *FileStore) SaveJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(s.jobPath(job.Kind, job.ID), job)
}

// LoadJob reads a snapshot by id, checking both job kinds
func (s *FileStore) LoadJob(id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range []models.JobKind{models.JobKindQA, models.JobKindLabel} {
		job, err := s.readJob(s.jobPath(kind, id))
		if err == nil {
			return job, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, ErrJobNotFound
}

func (s *FileStore) readJob(path string) (*models.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", filepath.Base(path), err)
	}
	return &job, nil
}

// ListJobs returns every persisted job snapshot
func (s *FileStore) ListJobs() ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var jobs []*models.Job
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if !strings.HasPrefix(name, "qa_") && !strings.HasPrefix(name, "label_") {
			continue
		}
		job, err := s.readJob(filepath.Join(s.dir, name))
		if err != nil {
			// Skip corrupt artifacts instead of failing the listing
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// DeleteJob removes the checkpoint for a job id
func (s *FileStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for _, kind := range []models.JobKind{models.JobKindQA, models.JobKindLabel} {
		err := os.Remove(s.jobPath(kind, id))
		if err == nil {
			removed = true
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}
	if !removed {
		return ErrJobNotFound
	}
	return nil
}

// SaveProject writes a project artifact atomically
func (s *FileStore) SaveProject(p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(s.projectPath(p.ID), p)
}

// LoadProject reads a project by id
func (s *FileStore) LoadProject(id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.projectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	var p models.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", id, err)
	}
	return &p, nil
}

// ListProjects returns all project artifacts
func (s *FileStore) ListProjects() ([]*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var projects []*models.Project
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "project_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var p models.Project
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		projects = append(projects, &p)
	}
	return projects, nil
}

// DeleteProject removes a project artifact
func (s *FileStore) DeleteProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.projectPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend
func (s *FileStore) Close() error {
	return nil
}
