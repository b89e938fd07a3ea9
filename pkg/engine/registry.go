package engine

import (
	"errors"
	"sync"

	"github.com/tader68/spdata/pkg/models"
)

var (
	// ErrJobActive is returned when a job id already has a live driver
	ErrJobActive = errors.New("job is already active")
	// ErrJobNotActive is returned for operations on jobs with no live entry
	ErrJobNotActive = errors.New("job is not active")
)

// Registry tracks live jobs. It is the source of truth while a driver runs;
// the checkpoint store takes over after restart. One coarse mutex guards the
// whole map and every job's mutable fields, which is plenty at the expected
// job counts and keeps the locking story trivial.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*jobEntry
}

type jobEntry struct {
	job            *models.Job
	pauseRequested bool
	// resume is non-nil while a pause is requested or in effect; closing it
	// wakes the blocked driver
	resume chan struct{}
}

// NewRegistry returns an empty job registry
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*jobEntry)}
}

// Add registers a job for a new driver. A live non-terminal entry under the
// same id means another driver owns it and the add is rejected; finished
// entries are replaced.
func (r *Registry) Add(job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[job.ID]; ok {
		if !models.IsTerminalState(existing.job.Status) {
			return ErrJobActive
		}
	}
	r.jobs[job.ID] = &jobEntry{job: job}
	return nil
}

// Update runs fn on the live job under the registry lock
func (r *Registry) Update(id string, fn func(*models.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return ErrJobNotActive
	}
	fn(e.job)
	return nil
}

// Snapshot returns a deep copy of the live job, or false if not present
func (r *Registry) Snapshot(id string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return e.job.Clone(), true
}

// List returns deep copies of all live jobs
func (r *Registry) List() []*models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]*models.Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		jobs = append(jobs, e.job.Clone())
	}
	return jobs
}

// Remove drops a job's entry
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// RequestPause asks the driver to stop at the next row or batch boundary.
// Repeated requests are no-ops; finished jobs cannot be paused.
func (r *Registry) RequestPause(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return ErrJobNotActive
	}
	if models.IsTerminalState(e.job.Status) {
		return ErrJobNotActive
	}
	if e.pauseRequested {
		return nil
	}
	e.pauseRequested = true
	e.resume = make(chan struct{})
	return nil
}

// RequestResume clears a pending or effective pause and wakes the driver.
// Resuming a job that is not paused is a no-op.
func (r *Registry) RequestResume(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return ErrJobNotActive
	}
	if models.IsTerminalState(e.job.Status) {
		return ErrJobNotActive
	}
	if !e.pauseRequested {
		return nil
	}
	e.pauseRequested = false
	close(e.resume)
	e.resume = nil
	return nil
}

// pauseWait reports whether a pause is requested for the job and, if so,
// returns the channel the driver must block on until resume. Called by the
// driver at every row/batch boundary.
func (r *Registry) pauseWait(id string) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok || !e.pauseRequested {
		return nil, false
	}
	return e.resume, true
}
