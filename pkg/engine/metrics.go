package engine

// MetricsRecorder receives processing events. The Prometheus implementation
// lives in pkg/metrics; the engine only depends on this narrow surface.
type MetricsRecorder interface {
	JobStarted(kind string)
	JobFinished(kind, status string)
	RowProcessed(kind string, failed bool)
	ModelCall(provider, model string)
	RetryAttempt(provider, model string)
}

// NopMetrics discards all events
type NopMetrics struct{}

func (NopMetrics) JobStarted(string)           {}
func (NopMetrics) JobFinished(string, string)  {}
func (NopMetrics) RowProcessed(string, bool)   {}
func (NopMetrics) ModelCall(string, string)    {}
func (NopMetrics) RetryAttempt(string, string) {}
