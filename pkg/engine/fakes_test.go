package engine

import (
	"context"
	"sync"

	"github.com/tader68/spdata/pkg/dataset"
)

// fakeClient scripts model responses per call. handler receives the 1-based
// call number and the prompt text.
type fakeClient struct {
	mu         sync.Mutex
	calls      int
	mediaCalls int
	lastMedia  string
	handler    func(call int, prompt string) (string, error)
}

func (c *fakeClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	return c.handler(n, prompt)
}

func (c *fakeClient) GenerateWithMedia(ctx context.Context, prompt, mediaPath, mediaKind string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mediaCalls++
	c.lastMedia = mediaPath
	n := c.calls
	c.mu.Unlock()
	return c.handler(n, prompt)
}

func (c *fakeClient) Provider() string     { return "fake" }
func (c *fakeClient) ModelVersion() string { return "fake-1" }

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeData serves canned job inputs
type fakeData struct {
	rows    []dataset.Row
	rules   *dataset.RuleSet
	media   map[string]dataset.MediaFile
	rowsErr error
}

func (d *fakeData) Rows(dataID string) ([]dataset.Row, error) {
	if d.rowsErr != nil {
		return nil, d.rowsErr
	}
	return d.rows, nil
}

func (d *fakeData) RuleSet(guidelineID string) (*dataset.RuleSet, error) {
	if d.rules != nil {
		return d.rules, nil
	}
	return &dataset.RuleSet{ID: guidelineID}, nil
}

func (d *fakeData) MediaIndex(batchID string) (map[string]dataset.MediaFile, error) {
	if d.media != nil {
		return d.media, nil
	}
	return map[string]dataset.MediaFile{}, nil
}

const qaOKResponse = `{"is_correct": true, "violated_rules": [], "confidence_score": 0.9, "explanation": "looks fine"}`
