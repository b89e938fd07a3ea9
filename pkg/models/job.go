package models

import (
	"time"
)

// JobKind identifies which evaluation pipeline produced a job
type JobKind string

const (
	JobKindQA    JobKind = "qa"    // correctness checking against guideline rules
	JobKindLabel JobKind = "label" // label assignment
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ColumnConfig describes how one source column is used. Columns present in a
// job's mapping are the only ones projected into model prompts; media columns
// are matched against the media filename index instead.
type ColumnConfig struct {
	Type          string `json:"type,omitempty"`
	Meaning       string `json:"meaning,omitempty"`
	IsMediaColumn bool   `json:"isMediaColumn,omitempty"`
}

// IsMedia reports whether the column carries a media file reference
func (c ColumnConfig) IsMedia() bool {
	return c.IsMediaColumn || c.Type == "media_path" || c.Type == "media_name"
}

// MediaRef records which media file was actually shown to the model for a row
type MediaRef struct {
	BatchID  string `json:"batch_id,omitempty"`
	Filename string `json:"filename"`
	Type     string `json:"type,omitempty"`
}

// Result is the outcome of evaluating one source row. Exactly one Result
// exists per row once the job completes; rows the model could not evaluate
// still produce a Result carrying the failure, never a gap.
type Result struct {
	RowIndex int                    `json:"row_index"`
	RowData  map[string]interface{} `json:"row_data"`

	// QA outcome
	IsCorrect       *bool    `json:"is_correct,omitempty"`
	ViolatedRules   []string `json:"violated_rules,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	ConfidenceScore float64  `json:"confidence_score,omitempty"`

	// Labeling outcome
	Labels map[string]string `json:"labels,omitempty"`

	Explanation string    `json:"explanation,omitempty"`
	Errors      []string  `json:"errors"`
	Media       *MediaRef `json:"media,omitempty"`
	RawError    string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Job is one run of AI-driven evaluation or labeling over a dataset. The
// serialized form of this struct is the checkpoint artifact: it must always
// contain enough state to resume after a process restart (credentials
// excepted, those are re-supplied at resume time).
type Job struct {
	ID            string                  `json:"id"`
	Kind          JobKind                 `json:"kind"`
	Status        JobStatus               `json:"status"`
	StartTime     time.Time               `json:"start_time"`
	EndTime       *time.Time              `json:"end_time,omitempty"`
	TotalRows     int                     `json:"total_rows"`
	ProcessedRows int                     `json:"processed_rows"`
	Results       []Result                `json:"results"`
	DataID        string                  `json:"data_id"`
	GuidelineID   string                  `json:"guideline_id,omitempty"`
	MediaBatchID  string                  `json:"media_batch_id,omitempty"`
	HasMedia      bool                    `json:"has_media,omitempty"`
	Provider      string                  `json:"provider"`
	ModelVersion  string                  `json:"model_version"`
	Prompt        string                  `json:"prompt"`
	ColumnMapping map[string]ColumnConfig `json:"column_mapping,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand to readers while the worker
// goroutine keeps mutating the original under the registry lock.
func (j *Job) Clone() *Job {
	c := *j
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	c.Results = make([]Result, len(j.Results))
	copy(c.Results, j.Results)
	if j.ColumnMapping != nil {
		c.ColumnMapping = make(map[string]ColumnConfig, len(j.ColumnMapping))
		for k, v := range j.ColumnMapping {
			c.ColumnMapping[k] = v
		}
	}
	return &c
}

// MediaColumns returns the names of columns flagged as media references
func (j *Job) MediaColumns() []string {
	var cols []string
	for name, cfg := range j.ColumnMapping {
		if cfg.IsMedia() {
			cols = append(cols, name)
		}
	}
	return cols
}

// Project groups related jobs for the frontend. Stored as its own artifact;
// job checkpoints stay independent of it.
type Project struct {
	ID            string                  `json:"project_id"`
	Name          string                  `json:"name"`
	Description   string                  `json:"description,omitempty"`
	CreatedBy     string                  `json:"created_by,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	Type          JobKind                 `json:"project_type"`
	Status        string                  `json:"status"`
	ColumnMapping map[string]ColumnConfig `json:"column_mapping,omitempty"`
	Config        map[string]interface{}  `json:"config,omitempty"`
	Sessions      []ProjectSession        `json:"sessions,omitempty"`
	LastJobID     string                  `json:"last_job_id,omitempty"`
}

// ProjectSession records one job launched under a project
type ProjectSession struct {
	JobID     string    `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
}
