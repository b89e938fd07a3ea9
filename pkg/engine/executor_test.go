package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tader68/spdata/pkg/dataset"
	"github.com/tader68/spdata/pkg/logging"
	"github.com/tader68/spdata/pkg/models"
	"github.com/tader68/spdata/pkg/retry"
)

func testExecutor(client *fakeClient) *executor {
	return &executor{
		client:      client,
		strategy:    qaStrategy{},
		retryConfig: retry.Config{MaxRetries: 2, Backoff: time.Millisecond, RetryIf: retry.IsTransient},
		log:         logging.NewLogger(logging.ERROR, false),
		metrics:     NopMetrics{},
	}
}

func TestExecutorRowSuccess(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return qaOKResponse, nil
	}}
	e := testExecutor(client)

	res := e.row(context.Background(), 4, dataset.Row{"text": "hello"})

	if res.RowIndex != 4 {
		t.Errorf("RowIndex = %d, want 4", res.RowIndex)
	}
	if res.IsCorrect == nil || !*res.IsCorrect {
		t.Errorf("IsCorrect = %v, want true", res.IsCorrect)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want empty", res.Errors)
	}
	if res.ViolatedRules == nil {
		t.Error("ViolatedRules must never be nil for QA results")
	}
}

func TestExecutorKeepsModelReportedErrors(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return `{"is_correct": false, "violated_rules": ["R1"], "errors": ["price column is negative"], "explanation": "bad row"}`, nil
	}}
	e := testExecutor(client)

	res := e.row(context.Background(), 0, dataset.Row{"price": "-3"})

	if len(res.Errors) != 1 || res.Errors[0] != "price column is negative" {
		t.Errorf("Errors = %v, want the model-reported problem", res.Errors)
	}

	e.strategy = labelStrategy{}
	client.handler = func(int, string) (string, error) {
		return `{"labels": {"sentiment": "neutral"}, "errors": ["description is empty"], "explanation": "thin row"}`, nil
	}
	res = e.row(context.Background(), 1, dataset.Row{"description": ""})

	if len(res.Errors) != 1 || res.Errors[0] != "description is empty" {
		t.Errorf("label Errors = %v, want the model-reported problem", res.Errors)
	}
}

func TestExecutorRetryBound(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return "", errors.New("504 Gateway Timeout")
	}}
	e := testExecutor(client)

	res := e.row(context.Background(), 0, dataset.Row{"text": "x"})

	// 1 initial attempt plus 2 retries, then the failure is absorbed
	if got := client.callCount(); got != 3 {
		t.Errorf("model called %d times, want 3", got)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected a failure entry in Errors")
	}
	if !strings.Contains(res.Errors[0], "AI connection failed") {
		t.Errorf("Errors[0] = %q, want connection failure message", res.Errors[0])
	}
	if res.RawError == "" {
		t.Error("RawError not preserved")
	}
	if res.IsCorrect != nil {
		t.Errorf("IsCorrect = %v, want unknown", *res.IsCorrect)
	}
}

func TestExecutorNonTransientNotRetried(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return "", errors.New("invalid request payload")
	}}
	e := testExecutor(client)

	res := e.row(context.Background(), 0, dataset.Row{"text": "x"})

	if got := client.callCount(); got != 1 {
		t.Errorf("model called %d times, want 1", got)
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "processing error") {
		t.Errorf("Errors = %v, want processing error message", res.Errors)
	}
}

func TestExecutorParseFailureIsNeutral(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return "I will not answer in JSON.", nil
	}}
	e := testExecutor(client)

	res := e.row(context.Background(), 0, dataset.Row{"text": "x"})

	if got := client.callCount(); got != 1 {
		t.Errorf("parse failures must not be retried, model called %d times", got)
	}
	if res.IsCorrect != nil {
		t.Errorf("IsCorrect = %v, want unknown", *res.IsCorrect)
	}
	if !strings.Contains(res.Explanation, "could not parse") {
		t.Errorf("Explanation = %q, want parse failure note", res.Explanation)
	}
	if len(res.Errors) != 0 {
		t.Errorf("parse failure is neutral, Errors = %v", res.Errors)
	}
}

func TestExecutorMediaMatch(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return qaOKResponse, nil
	}}
	e := testExecutor(client)
	e.mediaBatchID = "batch-1"
	e.media = map[string]dataset.MediaFile{
		"cat": {Filename: "cat.png", Path: "/media/batch-1/cat.png", Type: "image"},
	}
	e.mapping = map[string]models.ColumnConfig{
		"text": {Type: "text"},
		"img":  {Type: "media_name"},
	}

	res := e.row(context.Background(), 0, dataset.Row{"text": "a cat", "img": "CAT.PNG"})

	if client.mediaCalls != 1 {
		t.Fatalf("mediaCalls = %d, want 1", client.mediaCalls)
	}
	if client.lastMedia != "/media/batch-1/cat.png" {
		t.Errorf("media path = %q", client.lastMedia)
	}
	if res.Media == nil || res.Media.Filename != "cat.png" {
		t.Errorf("Media = %+v, want cat.png reference", res.Media)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want empty", res.Errors)
	}
}

func TestExecutorMediaMissFallsBackToText(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return qaOKResponse, nil
	}}
	e := testExecutor(client)
	e.media = map[string]dataset.MediaFile{
		"cat": {Filename: "cat.png", Path: "/m/cat.png", Type: "image"},
	}
	e.mapping = map[string]models.ColumnConfig{
		"img": {Type: "media_name"},
	}

	res := e.row(context.Background(), 0, dataset.Row{"img": "dog.png"})

	if client.mediaCalls != 0 {
		t.Errorf("mediaCalls = %d, want 0", client.mediaCalls)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "media file not found") {
		t.Errorf("Errors = %v, want media warning", res.Errors)
	}
	if res.IsCorrect == nil || !*res.IsCorrect {
		t.Error("row should still be evaluated text-only")
	}
}

func TestExecutorProjection(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return qaOKResponse, nil
	}}
	e := testExecutor(client)
	e.mapping = map[string]models.ColumnConfig{
		"keep": {Type: "text"},
	}

	res := e.row(context.Background(), 0, dataset.Row{"keep": "yes", "drop": "no"})

	if _, ok := res.RowData["drop"]; ok {
		t.Error("unmapped column leaked into RowData")
	}
	if res.RowData["keep"] != "yes" {
		t.Errorf("RowData = %v, want keep column", res.RowData)
	}
}

func TestExecutorBatchMapsByIndex(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return `{"items": [
			{"index": 1, "is_correct": false, "violated_rules": ["r1"], "explanation": "bad"},
			{"index": 0, "is_correct": true, "violated_rules": []}
		]}`, nil
	}}
	e := testExecutor(client)

	results := e.batch(context.Background(), 10, []dataset.Row{{"t": "a"}, {"t": "b"}})

	if len(results) != 2 {
		t.Fatalf("batch returned %d results, want 2", len(results))
	}
	if results[0].RowIndex != 10 || results[1].RowIndex != 11 {
		t.Errorf("row indexes = %d,%d want 10,11", results[0].RowIndex, results[1].RowIndex)
	}
	if results[0].IsCorrect == nil || !*results[0].IsCorrect {
		t.Error("first row verdict lost in out-of-order mapping")
	}
	if results[1].IsCorrect == nil || *results[1].IsCorrect {
		t.Error("second row verdict lost in out-of-order mapping")
	}
	if len(results[1].ViolatedRules) != 1 || results[1].ViolatedRules[0] != "r1" {
		t.Errorf("ViolatedRules = %v, want [r1]", results[1].ViolatedRules)
	}
}

func TestExecutorBatchFailureCoversWholeSlice(t *testing.T) {
	client := &fakeClient{handler: func(int, string) (string, error) {
		return "", errors.New("429 Too Many Requests")
	}}
	e := testExecutor(client)

	results := e.batch(context.Background(), 0, []dataset.Row{{"t": "a"}, {"t": "b"}, {"t": "c"}})

	if got := client.callCount(); got != 3 {
		t.Errorf("model called %d times, want 3 (one call plus two retries)", got)
	}
	for i, res := range results {
		if len(res.Errors) == 0 {
			t.Errorf("row %d has no failure entry", i)
		}
	}
}
