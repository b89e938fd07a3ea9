package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tader68/spdata/pkg/engine"
	"github.com/tader68/spdata/pkg/models"
	"github.com/tader68/spdata/pkg/ratelimit"
	"github.com/tader68/spdata/pkg/store"
)

// JobService is the job control surface the handler exposes over HTTP
type JobService interface {
	Start(req engine.StartRequest) (string, error)
	Status(id string) (*engine.StatusView, error)
	FullResult(id string) (*models.Job, error)
	PartialResults(id string) ([]models.Result, error)
	List() ([]*models.Job, error)
	Pause(id string) error
	Resume(id string) error
	ResumeFromCheckpoint(id string, req engine.ResumeRequest) (string, error)
}

// Handler serves the job and project API
type Handler struct {
	service JobService
	store   store.Store
	limiter *ratelimit.HTTPLimiter
}

// NewHandler creates an API handler
func NewHandler(service JobService, s store.Store) *Handler {
	return &Handler{
		service: service,
		store:   s,
		limiter: ratelimit.NewHTTPLimiter(5, 10),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Job creation carries credentials and triggers model traffic, so it
	// gets a per-client limit the read endpoints do not need
	limited := h.limiter.Middleware(ratelimit.IPKeyFunc)

	r.Handle("/api/jobs", limited(http.HandlerFunc(h.CreateJob))).Methods("POST")
	r.HandleFunc("/api/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/status", h.JobStatus).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/partial", h.PartialResults).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/pause", h.PauseJob).Methods("POST")
	r.HandleFunc("/api/jobs/{id}/resume", h.ResumeJob).Methods("POST")
	r.Handle("/api/jobs/{id}/resume-checkpoint", limited(http.HandlerFunc(h.ResumeFromCheckpoint))).Methods("POST")
	r.HandleFunc("/api/jobs/{id}", h.GetJob).Methods("GET")

	r.HandleFunc("/api/projects", h.CreateProject).Methods("POST")
	r.HandleFunc("/api/projects", h.ListProjects).Methods("GET")
	r.HandleFunc("/api/projects/{id}", h.GetProject).Methods("GET")
	r.HandleFunc("/api/projects/{id}", h.UpdateProject).Methods("PUT")
	r.HandleFunc("/api/projects/{id}", h.DeleteProject).Methods("DELETE")

	r.HandleFunc("/health", h.Health).Methods("GET")
}

type createJobRequest struct {
	Kind          string                          `json:"kind"`
	APIKey        string                          `json:"api_key"`
	Provider      string                          `json:"provider"`
	Model         string                          `json:"model"`
	Prompt        string                          `json:"prompt"`
	DataID        string                          `json:"data_id"`
	GuidelineID   string                          `json:"guideline_id"`
	MediaBatchID  string                          `json:"media_batch_id"`
	ColumnMapping map[string]models.ColumnConfig  `json:"column_mapping"`
	BatchSize     int                             `json:"batch_size"`
	ProjectID     string                          `json:"project_id"`
}

// CreateJob launches a new job. The API key is handed to the engine and
// never echoed back or persisted.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.service.Start(engine.StartRequest{
		Kind:          models.JobKind(req.Kind),
		APIKey:        req.APIKey,
		Provider:      req.Provider,
		Model:         req.Model,
		Prompt:        req.Prompt,
		DataID:        req.DataID,
		GuidelineID:   req.GuidelineID,
		MediaBatchID:  req.MediaBatchID,
		ColumnMapping: req.ColumnMapping,
		BatchSize:     req.BatchSize,
		ProjectID:     req.ProjectID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("Job created: %s (kind=%s, data=%s)", id, req.Kind, req.DataID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"job_id": id,
		"status": string(models.JobStatusProcessing),
	})
}

// ListJobs returns all jobs, live and checkpointed
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List()
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// JobStatus answers status polling
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Status(mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetJob returns the full job snapshot
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.FullResult(mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// PartialResults returns a progress summary plus the most recent results
func (h *Handler) PartialResults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := h.service.Status(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	results, err := h.service.PartialResults(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	const recentLimit = 10
	if len(results) > recentLimit {
		results = results[len(results)-recentLimit:]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":         id,
		"status":         status.Status,
		"processed_rows": status.Processed,
		"total_rows":     status.Total,
		"recent_results": results,
	})
}

// PauseJob asks the driver to stop at the next row/batch boundary
func (h *Handler) PauseJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Pause(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "pause requested"})
}

// ResumeJob wakes a paused job
func (h *Handler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Resume(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "resume requested"})
}

type resumeCheckpointRequest struct {
	APIKey   string `json:"api_key"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

// ResumeFromCheckpoint restarts a job from its persisted snapshot
func (h *Handler) ResumeFromCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req resumeCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	jobID, err := h.service.ResumeFromCheckpoint(id, engine.ResumeRequest{
		APIKey:   req.APIKey,
		Provider: req.Provider,
		Model:    req.Model,
		Prompt:   req.Prompt,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("Job resumed from checkpoint: %s", jobID)
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": string(models.JobStatusProcessing),
	})
}

type createProjectRequest struct {
	Name          string                          `json:"name"`
	Description   string                          `json:"description"`
	CreatedBy     string                          `json:"created_by"`
	Type          string                          `json:"project_type"`
	ColumnMapping map[string]models.ColumnConfig  `json:"column_mapping"`
	Config        map[string]interface{}          `json:"config"`
}

// stripCredentials removes api-key-like entries from a project config echo.
// Provider keys arrive per request and must never land in a durable artifact.
func stripCredentials(config map[string]interface{}) map[string]interface{} {
	if config == nil {
		return nil
	}
	clean := make(map[string]interface{}, len(config))
	for k, v := range config {
		switch strings.ToLower(k) {
		case "apikey", "api_key", "api-key", "key":
			continue
		}
		clean[k] = v
	}
	return clean
}

// CreateProject creates a project grouping
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Project name is required", http.StatusBadRequest)
		return
	}

	p := &models.Project{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Description:   req.Description,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     time.Now().UTC(),
		Type:          models.JobKind(req.Type),
		Status:        "active",
		ColumnMapping: req.ColumnMapping,
		Config:        stripCredentials(req.Config),
	}
	if err := h.store.SaveProject(p); err != nil {
		log.Printf("Error saving project: %v", err)
		http.Error(w, "Failed to save project", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListProjects returns all projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects()
	if err != nil {
		http.Error(w, "Failed to list projects", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetProject returns one project
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.LoadProject(mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProject replaces a project's mutable fields
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := h.store.LoadProject(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Description != "" {
		p.Description = req.Description
	}
	if req.ColumnMapping != nil {
		p.ColumnMapping = req.ColumnMapping
	}
	if req.Config != nil {
		p.Config = stripCredentials(req.Config)
	}
	if err := h.store.SaveProject(p); err != nil {
		http.Error(w, "Failed to save project", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject removes a project artifact
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteProject(mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps engine and store errors onto HTTP status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, engine.ErrJobNotActive):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrJobActive),
		errors.Is(err, engine.ErrJobTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrMissingCredential),
		errors.Is(err, engine.ErrMissingPrerequisite),
		errors.Is(err, engine.ErrUnknownJobKind):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Internal error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
