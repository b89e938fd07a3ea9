package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tader68/spdata/pkg/models"
)

type staticLister struct {
	jobs []*models.Job
}

func (l *staticLister) List() ([]*models.Job, error) {
	return l.jobs, nil
}

func TestExporterServesJobBreakdown(t *testing.T) {
	lister := &staticLister{jobs: []*models.Job{
		{ID: "a", Status: models.JobStatusProcessing},
		{ID: "b", Status: models.JobStatusPaused},
		{ID: "c", Status: models.JobStatusCompleted},
	}}
	e := NewExporter(lister)
	e.JobStarted("qa")
	e.RowProcessed("qa", false)
	e.RowProcessed("qa", true)
	e.JobFinished("qa", "completed")
	e.ModelCall("gemini", "gemini-2.5-flash")
	e.RetryAttempt("gemini", "gemini-2.5-flash")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`spdata_jobs{status="processing"} 1`,
		`spdata_jobs{status="paused"} 1`,
		`spdata_jobs{status="completed"} 1`,
		"spdata_active_jobs 2",
		`spdata_jobs_started_total{kind="qa"} 1`,
		`spdata_rows_processed_total{kind="qa"} 2`,
		`spdata_row_failures_total{kind="qa"} 1`,
		`spdata_jobs_finished_total{kind="qa",status="completed"} 1`,
		"spdata_model_calls_total",
		"spdata_model_retries_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestExporterLateJobSourceWiring(t *testing.T) {
	e := NewExporter(nil)

	// Scrapes before wiring see an empty population, not a panic
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "spdata_active_jobs 0") {
		t.Errorf("unwired exporter output: %q", rec.Body.String())
	}

	// Wiring may race an in-flight scrape; both go through the mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		}
	}()
	e.SetJobSource(&staticLister{jobs: []*models.Job{
		{ID: "a", Status: models.JobStatusProcessing},
	}})
	<-done

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "spdata_active_jobs 1") {
		t.Error("wired lister not reflected in scrape")
	}
}
