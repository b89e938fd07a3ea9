package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tader68/spdata/pkg/ai"
	"github.com/tader68/spdata/pkg/dataset"
	"github.com/tader68/spdata/pkg/logging"
	"github.com/tader68/spdata/pkg/models"
	"github.com/tader68/spdata/pkg/ratelimit"
	"github.com/tader68/spdata/pkg/retry"
	"github.com/tader68/spdata/pkg/store"
)

var (
	// ErrUnknownJobKind is returned for kinds outside qa/label
	ErrUnknownJobKind = errors.New("unknown job kind")
	// ErrMissingCredential is returned when no API key accompanies a request
	ErrMissingCredential = errors.New("API key is required")
	// ErrMissingPrerequisite is returned when a checkpoint lacks the input
	// references needed to rehydrate the job
	ErrMissingPrerequisite = errors.New("checkpoint is missing a required input reference")
	// ErrJobTerminal is returned when resuming an already finished job
	ErrJobTerminal = errors.New("job has already finished")
)

// BatchPolicy selects how many rows share one model call. Derived sizes
// spread a daily row target over the provider's daily request quota.
type BatchPolicy struct {
	TargetRowsPerDay int // rows the deployment aims to get through per day
	MaxSize          int // hard per-call ceiling
	Override         int // explicit size, 0 derives from quota
}

// DefaultBatchPolicy returns the stock tuning
func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{TargetRowsPerDay: 50000, MaxSize: 250}
}

// Size computes the batch size for a provider/model pair. 1 means row mode.
func (p BatchPolicy) Size(provider, model string) int {
	maxSize := p.MaxSize
	if maxSize <= 0 {
		maxSize = 250
	}
	if p.Override > 0 {
		if p.Override > maxSize {
			return maxSize
		}
		return p.Override
	}
	rpd := ai.DefaultRPD(provider, model)
	if rpd <= 0 {
		return 1
	}
	target := p.TargetRowsPerDay
	if target <= 0 {
		target = 50000
	}
	size := target / rpd
	if size < 1 {
		return 1
	}
	if size > maxSize {
		return maxSize
	}
	return size
}

// Service is the job control surface: it validates inputs, loads job data,
// spawns one driver goroutine per job, and answers status queries from the
// registry while a job is live and from the checkpoint store afterwards.
type Service struct {
	registry *Registry
	store    store.Store
	data     dataset.Store
	limiters *ratelimit.Registry
	metrics  MetricsRecorder
	log      *logging.Logger
	batch    BatchPolicy
	retryCfg retry.Config

	// newClient is swapped in tests
	newClient func(ai.Config) (ai.Client, error)
}

// Options configures a Service
type Options struct {
	Store    store.Store
	Data     dataset.Store
	Limiters *ratelimit.Registry
	Metrics  MetricsRecorder
	Logger   *logging.Logger
	Batch    BatchPolicy
}

// NewService wires a job service
func NewService(opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.INFO, false)
	}
	if opts.Batch == (BatchPolicy{}) {
		opts.Batch = DefaultBatchPolicy()
	}
	return &Service{
		registry:  NewRegistry(),
		store:     opts.Store,
		data:      opts.Data,
		limiters:  opts.Limiters,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		batch:     opts.Batch,
		retryCfg:  retry.DefaultConfig(),
		newClient: ai.New,
	}
}

// StartRequest carries everything needed to launch a fresh job. The API key
// lives only in this request and in the provider client built from it; it is
// never written to a checkpoint.
type StartRequest struct {
	Kind          models.JobKind
	APIKey        string
	Provider      string
	Model         string
	Prompt        string
	DataID        string
	GuidelineID   string
	MediaBatchID  string
	ColumnMapping map[string]models.ColumnConfig
	BatchSize     int    // explicit override, 0 derives from quota
	ProjectID     string // optional project to record the session under
}

// Start validates the request, loads inputs, and launches the job driver.
// It returns once the job is registered and its first checkpoint written.
func (s *Service) Start(req StartRequest) (string, error) {
	strategy := StrategyFor(req.Kind)
	if strategy == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobKind, req.Kind)
	}
	if req.APIKey == "" {
		return "", ErrMissingCredential
	}
	if req.DataID == "" {
		return "", fmt.Errorf("%w: data id", ErrMissingPrerequisite)
	}
	if req.Kind == models.JobKindQA && req.GuidelineID == "" {
		return "", fmt.Errorf("%w: guideline id", ErrMissingPrerequisite)
	}

	provider := req.Provider
	if provider == "" {
		provider = "gemini"
	}
	model := req.Model
	if model == "" {
		model = ai.DefaultModel(provider)
	}

	client, err := s.newClient(ai.Config{
		Provider: provider,
		APIKey:   req.APIKey,
		Model:    model,
		Limiters: s.limiters,
	})
	if err != nil {
		return "", err
	}

	inputs, err := s.loadInputs(req.DataID, req.GuidelineID, req.MediaBatchID)
	if err != nil {
		return "", err
	}

	job := &models.Job{
		ID:            uuid.New().String(),
		Kind:          req.Kind,
		Status:        models.JobStatusProcessing,
		StartTime:     time.Now().UTC(),
		TotalRows:     len(inputs.rows),
		Results:       []models.Result{},
		DataID:        req.DataID,
		GuidelineID:   req.GuidelineID,
		MediaBatchID:  req.MediaBatchID,
		HasMedia:      req.MediaBatchID != "",
		Provider:      provider,
		ModelVersion:  client.ModelVersion(),
		Prompt:        req.Prompt,
		ColumnMapping: req.ColumnMapping,
	}

	batchSize := 1
	if !job.HasMedia {
		policy := s.batch
		if req.BatchSize > 0 {
			policy.Override = req.BatchSize
		}
		batchSize = policy.Size(provider, model)
	}

	if err := s.launch(job, client, strategy, inputs, batchSize, 0); err != nil {
		return "", err
	}

	if req.ProjectID != "" {
		s.recordSession(req.ProjectID, job.ID)
	}
	return job.ID, nil
}

// ResumeRequest supplies the fresh credentials and optional overrides for
// resuming a checkpointed job
type ResumeRequest struct {
	APIKey   string
	Provider string // overrides the checkpoint's provider when set
	Model    string // overrides the checkpoint's model when set
	Prompt   string // overrides the checkpoint's prompt when set
}

// ResumeFromCheckpoint rebuilds a driver from a persisted snapshot. Resumed
// jobs always run in row mode; recovery favors determinism over throughput.
func (s *Service) ResumeFromCheckpoint(id string, req ResumeRequest) (string, error) {
	if req.APIKey == "" {
		return "", ErrMissingCredential
	}

	job, err := s.store.LoadJob(id)
	if err != nil {
		return "", err
	}
	if models.IsTerminalState(job.Status) {
		return "", fmt.Errorf("%w: status is %s", ErrJobTerminal, job.Status)
	}
	if job.DataID == "" {
		return "", fmt.Errorf("%w: data id", ErrMissingPrerequisite)
	}
	if job.Kind == models.JobKindQA && job.GuidelineID == "" {
		return "", fmt.Errorf("%w: guideline id", ErrMissingPrerequisite)
	}
	strategy := StrategyFor(job.Kind)
	if strategy == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobKind, job.Kind)
	}
	if live, ok := s.registry.Snapshot(id); ok && !models.IsTerminalState(live.Status) {
		return "", ErrJobActive
	}

	if req.Provider != "" {
		job.Provider = req.Provider
	}
	if req.Model != "" {
		job.ModelVersion = req.Model
	}
	if req.Prompt != "" {
		job.Prompt = req.Prompt
	}

	client, err := s.newClient(ai.Config{
		Provider: job.Provider,
		APIKey:   req.APIKey,
		Model:    job.ModelVersion,
		Limiters: s.limiters,
	})
	if err != nil {
		return "", err
	}

	inputs, err := s.loadInputs(job.DataID, job.GuidelineID, job.MediaBatchID)
	if err != nil {
		return "", err
	}

	job.Status = models.JobStatusProcessing
	job.EndTime = nil
	job.ProcessedRows = len(job.Results)
	job.TotalRows = len(inputs.rows)

	if err := s.launch(job, client, strategy, inputs, 1, job.ProcessedRows); err != nil {
		return "", err
	}
	return job.ID, nil
}

type jobInputs struct {
	rows  []dataset.Row
	rules *dataset.RuleSet
	media map[string]dataset.MediaFile
}

func (s *Service) loadInputs(dataID, guidelineID, mediaBatchID string) (*jobInputs, error) {
	rows, err := s.data.Rows(dataID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", dataID, err)
	}
	in := &jobInputs{rows: rows}
	if guidelineID != "" {
		in.rules, err = s.data.RuleSet(guidelineID)
		if err != nil {
			return nil, fmt.Errorf("failed to load guideline %s: %w", guidelineID, err)
		}
	}
	if mediaBatchID != "" {
		in.media, err = s.data.MediaIndex(mediaBatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to load media batch %s: %w", mediaBatchID, err)
		}
	}
	return in, nil
}

// launch registers the job, writes the initial checkpoint, and starts the
// driver goroutine
func (s *Service) launch(job *models.Job, client ai.Client, strategy Strategy, in *jobInputs, batchSize, startAt int) error {
	if err := s.registry.Add(job); err != nil {
		return err
	}
	if err := s.store.SaveJob(job.Clone()); err != nil {
		s.registry.Remove(job.ID)
		return fmt.Errorf("failed to write initial checkpoint: %w", err)
	}

	exec := &executor{
		client:       client,
		strategy:     strategy,
		template:     job.Prompt,
		rules:        in.rules,
		media:        in.media,
		mediaBatchID: job.MediaBatchID,
		mapping:      job.ColumnMapping,
		retryConfig:  s.retryCfg,
		log:          s.log,
		metrics:      s.metrics,
	}
	d := &driver{
		jobID:     job.ID,
		kind:      job.Kind,
		registry:  s.registry,
		store:     s.store,
		exec:      exec,
		rows:      in.rows,
		batchSize: batchSize,
		startAt:   startAt,
		log:       s.log,
		metrics:   s.metrics,
		done:      make(chan struct{}),
	}
	s.metrics.JobStarted(string(job.Kind))
	go d.run()
	return nil
}

// StatusView answers status polling
type StatusView struct {
	JobID     string           `json:"job_id"`
	Status    models.JobStatus `json:"status"`
	Processed int              `json:"processed_rows"`
	Total     int              `json:"total_rows"`
	Error     string           `json:"error,omitempty"`
}

// Status returns the live view of a job, falling back to its checkpoint
// when no driver is running in this process
func (s *Service) Status(id string) (*StatusView, error) {
	job, ok := s.registry.Snapshot(id)
	if !ok {
		var err error
		job, err = s.store.LoadJob(id)
		if err != nil {
			return nil, err
		}
	}
	return &StatusView{
		JobID:     job.ID,
		Status:    job.Status,
		Processed: job.ProcessedRows,
		Total:     job.TotalRows,
		Error:     job.Error,
	}, nil
}

// FullResult returns the complete job snapshot
func (s *Service) FullResult(id string) (*models.Job, error) {
	if job, ok := s.registry.Snapshot(id); ok {
		return job, nil
	}
	return s.store.LoadJob(id)
}

// PartialResults returns the results accumulated so far
func (s *Service) PartialResults(id string) ([]models.Result, error) {
	job, err := s.FullResult(id)
	if err != nil {
		return nil, err
	}
	return job.Results, nil
}

// List returns all jobs known to this process plus persisted checkpoints
// for jobs with no live entry
func (s *Service) List() ([]*models.Job, error) {
	live := s.registry.List()
	seen := make(map[string]bool, len(live))
	for _, j := range live {
		seen[j.ID] = true
	}
	persisted, err := s.store.ListJobs()
	if err != nil {
		return nil, err
	}
	for _, j := range persisted {
		if !seen[j.ID] {
			live = append(live, j)
		}
	}
	return live, nil
}

// Pause asks the job's driver to stop at the next row/batch boundary
func (s *Service) Pause(id string) error {
	return s.registry.RequestPause(id)
}

// Resume wakes a paused job
func (s *Service) Resume(id string) error {
	return s.registry.RequestResume(id)
}

// recordSession appends the job to a project's session history, best effort
func (s *Service) recordSession(projectID, jobID string) {
	p, err := s.store.LoadProject(projectID)
	if err != nil {
		s.log.Warn("could not record project session", map[string]interface{}{
			"project_id": projectID, "job_id": jobID, "error": err.Error(),
		})
		return
	}
	p.LastJobID = jobID
	p.Sessions = append(p.Sessions, models.ProjectSession{
		JobID:     jobID,
		StartedAt: time.Now().UTC(),
	})
	if err := s.store.SaveProject(p); err != nil {
		s.log.Warn("could not save project session", map[string]interface{}{
			"project_id": projectID, "error": err.Error(),
		})
	}
}
