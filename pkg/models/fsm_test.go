package models

import (
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr bool
	}{
		// Valid transitions
		{"Processing to Paused", JobStatusProcessing, JobStatusPaused, false},
		{"Processing to Completed", JobStatusProcessing, JobStatusCompleted, false},
		{"Processing to Failed", JobStatusProcessing, JobStatusFailed, false},
		{"Paused to Processing", JobStatusPaused, JobStatusProcessing, false},

		// Invalid transitions
		{"Paused to Completed", JobStatusPaused, JobStatusCompleted, true},
		{"Paused to Failed", JobStatusPaused, JobStatusFailed, true},
		{"Completed to Processing", JobStatusCompleted, JobStatusProcessing, true},
		{"Failed to Processing", JobStatusFailed, JobStatusProcessing, true},
		{"Completed to Paused", JobStatusCompleted, JobStatusPaused, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTransitionUnknownState(t *testing.T) {
	if err := ValidateTransition(JobStatus("bogus"), JobStatusCompleted); err == nil {
		t.Error("Expected error for unknown source state")
	}
}

func TestIsTerminalState(t *testing.T) {
	tests := []struct {
		name     string
		state    JobStatus
		expected bool
	}{
		{"Completed is terminal", JobStatusCompleted, true},
		{"Failed is terminal", JobStatusFailed, true},
		{"Processing is not terminal", JobStatusProcessing, false},
		{"Paused is not terminal", JobStatusPaused, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminalState(tt.state); got != tt.expected {
				t.Errorf("IsTerminalState(%v) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}

func TestJobClone(t *testing.T) {
	correct := true
	job := &Job{
		ID:     "j1",
		Kind:   JobKindQA,
		Status: JobStatusProcessing,
		Results: []Result{
			{RowIndex: 0, IsCorrect: &correct, Errors: []string{}},
		},
		ColumnMapping: map[string]ColumnConfig{
			"text": {Type: "content"},
		},
	}

	clone := job.Clone()
	clone.Results = append(clone.Results, Result{RowIndex: 1, Errors: []string{}})
	clone.ColumnMapping["extra"] = ColumnConfig{}

	if len(job.Results) != 1 {
		t.Errorf("Clone mutation leaked into original results: %d", len(job.Results))
	}
	if _, ok := job.ColumnMapping["extra"]; ok {
		t.Error("Clone mutation leaked into original column mapping")
	}
}

func TestColumnConfigIsMedia(t *testing.T) {
	tests := []struct {
		name string
		cfg  ColumnConfig
		want bool
	}{
		{"media_path type", ColumnConfig{Type: "media_path"}, true},
		{"media_name type", ColumnConfig{Type: "media_name"}, true},
		{"explicit flag", ColumnConfig{Type: "content", IsMediaColumn: true}, true},
		{"plain content", ColumnConfig{Type: "content"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsMedia(); got != tt.want {
				t.Errorf("IsMedia() = %v, want %v", got, tt.want)
			}
		})
	}
}
