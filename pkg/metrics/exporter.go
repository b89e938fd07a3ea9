package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/tader68/spdata/pkg/models"
)

// JobLister supplies the current job population for the state breakdown
type JobLister interface {
	List() ([]*models.Job, error)
}

var (
	modelCalls = promauto.NewCounterVec(promclient.CounterOpts{
		Name: "spdata_model_calls_total",
		Help: "Model API calls by provider and model",
	}, []string{"provider", "model"})

	modelRetries = promauto.NewCounterVec(promclient.CounterOpts{
		Name: "spdata_model_retries_total",
		Help: "Transient-failure retries by provider and model",
	}, []string{"provider", "model"})
)

// Exporter serves Prometheus-compatible metrics and records processing
// events from the job engine
type Exporter struct {
	jobs      JobLister
	startTime time.Time

	mu           sync.RWMutex
	jobsStarted  map[string]int64 // kind -> count
	jobsFinished map[string]int64 // kind/status -> count
	rowsByKind   map[string]int64
	rowFailures  map[string]int64
}

// NewExporter creates a metrics exporter backed by the given job source
func NewExporter(jobs JobLister) *Exporter {
	return &Exporter{
		jobs:         jobs,
		startTime:    time.Now(),
		jobsStarted:  make(map[string]int64),
		jobsFinished: make(map[string]int64),
		rowsByKind:   make(map[string]int64),
		rowFailures:  make(map[string]int64),
	}
}

// SetJobSource wires the job population after construction. The exporter is
// handed to the engine as its recorder before the engine exists, so the
// lister arrives late.
func (e *Exporter) SetJobSource(jobs JobLister) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = jobs
}

func (e *Exporter) jobSource() JobLister {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.jobs
}

// JobStarted records a launched job
func (e *Exporter) JobStarted(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobsStarted[kind]++
}

// JobFinished records a job reaching a terminal state
func (e *Exporter) JobFinished(kind, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobsFinished[kind+"/"+status]++
}

// RowProcessed records one evaluated row
func (e *Exporter) RowProcessed(kind string, failed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rowsByKind[kind]++
	if failed {
		e.rowFailures[kind]++
	}
}

// ModelCall records one model API call
func (e *Exporter) ModelCall(provider, model string) {
	modelCalls.WithLabelValues(provider, model).Inc()
}

// RetryAttempt records one transient-failure retry
func (e *Exporter) RetryAttempt(provider, model string) {
	modelRetries.WithLabelValues(provider, model).Inc()
}

// ServeHTTP serves the metrics page: the custom text section first, then
// everything gathered from the default Prometheus registry
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var jobs []*models.Job
	if lister := e.jobSource(); lister != nil {
		var err error
		jobs, err = lister.List()
		if err != nil {
			http.Error(w, fmt.Sprintf("Error collecting job metrics: %v", err), http.StatusInternalServerError)
			return
		}
	}

	jobsByStatus := map[string]int{
		string(models.JobStatusProcessing): 0,
		string(models.JobStatusPaused):     0,
		string(models.JobStatusCompleted):  0,
		string(models.JobStatusFailed):     0,
	}
	active := 0
	for _, job := range jobs {
		jobsByStatus[string(job.Status)]++
		if !models.IsTerminalState(job.Status) {
			active++
		}
	}

	fmt.Fprintf(w, "# HELP spdata_jobs Jobs known to this process by status\n")
	fmt.Fprintf(w, "# TYPE spdata_jobs gauge\n")
	for _, status := range []string{"processing", "paused", "completed", "failed"} {
		fmt.Fprintf(w, "spdata_jobs{status=\"%s\"} %d\n", status, jobsByStatus[status])
	}

	fmt.Fprintf(w, "\n# HELP spdata_active_jobs Jobs currently processing or paused\n")
	fmt.Fprintf(w, "# TYPE spdata_active_jobs gauge\n")
	fmt.Fprintf(w, "spdata_active_jobs %d\n", active)

	e.mu.RLock()
	fmt.Fprintf(w, "\n# HELP spdata_jobs_started_total Jobs launched by kind\n")
	fmt.Fprintf(w, "# TYPE spdata_jobs_started_total counter\n")
	for _, kind := range []string{"qa", "label"} {
		fmt.Fprintf(w, "spdata_jobs_started_total{kind=\"%s\"} %d\n", kind, e.jobsStarted[kind])
	}

	fmt.Fprintf(w, "\n# HELP spdata_jobs_finished_total Finished jobs by kind and terminal status\n")
	fmt.Fprintf(w, "# TYPE spdata_jobs_finished_total counter\n")
	for _, kind := range []string{"qa", "label"} {
		for _, status := range []string{"completed", "failed"} {
			fmt.Fprintf(w, "spdata_jobs_finished_total{kind=\"%s\",status=\"%s\"} %d\n",
				kind, status, e.jobsFinished[kind+"/"+status])
		}
	}

	fmt.Fprintf(w, "\n# HELP spdata_rows_processed_total Rows evaluated by kind\n")
	fmt.Fprintf(w, "# TYPE spdata_rows_processed_total counter\n")
	for _, kind := range []string{"qa", "label"} {
		fmt.Fprintf(w, "spdata_rows_processed_total{kind=\"%s\"} %d\n", kind, e.rowsByKind[kind])
	}

	fmt.Fprintf(w, "\n# HELP spdata_row_failures_total Rows whose result carries errors, by kind\n")
	fmt.Fprintf(w, "# TYPE spdata_row_failures_total counter\n")
	for _, kind := range []string{"qa", "label"} {
		fmt.Fprintf(w, "spdata_row_failures_total{kind=\"%s\"} %d\n", kind, e.rowFailures[kind])
	}
	e.mu.RUnlock()

	fmt.Fprintf(w, "\n# HELP spdata_uptime_seconds Process uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE spdata_uptime_seconds gauge\n")
	fmt.Fprintf(w, "spdata_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	fmt.Fprintf(w, "\n")

	metricFamilies, err := promclient.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}
