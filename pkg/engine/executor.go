package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tader68/spdata/pkg/ai"
	"github.com/tader68/spdata/pkg/dataset"
	"github.com/tader68/spdata/pkg/logging"
	"github.com/tader68/spdata/pkg/models"
	"github.com/tader68/spdata/pkg/retry"
)

// executor produces one Result per source row (row mode) or per slice of
// rows (batch mode). Failures at this level are always absorbed into the
// Result; nothing an executor does can abort the job.
type executor struct {
	client       ai.Client
	strategy     Strategy
	template     string
	rules        *dataset.RuleSet
	media        map[string]dataset.MediaFile
	mediaBatchID string
	mapping      map[string]models.ColumnConfig
	retryConfig  retry.Config
	log          *logging.Logger
	metrics      MetricsRecorder
}

// row evaluates one source row and always returns a Result
func (e *executor) row(ctx context.Context, index int, row dataset.Row) models.Result {
	res := models.Result{
		RowIndex:  index,
		Errors:    []string{},
		Timestamp: time.Now().UTC(),
	}
	res.RowData = e.project(row)

	mediaPath, mediaKind := "", ""
	if col, value := e.mediaValue(row); col != "" {
		if file, ok := e.media[dataset.NormalizeKey(value)]; ok {
			mediaPath = file.Path
			mediaKind = file.Type
			res.Media = &models.MediaRef{
				BatchID:  e.mediaBatchID,
				Filename: file.Filename,
				Type:     file.Type,
			}
		} else {
			res.Errors = append(res.Errors,
				fmt.Sprintf("media file not found for %q, processed without media", value))
		}
	}

	promptText := e.strategy.Prompts().Row(res.RowData, e.template, e.rules, mediaKind)

	text, err := e.generate(ctx, promptText, mediaPath, mediaKind)
	if err != nil {
		e.recordFailure(&res, err)
		return res
	}

	payload, err := decodeModelJSON(text)
	if err != nil {
		e.log.Warn("unparseable model response", map[string]interface{}{
			"row_index": index,
		})
		e.strategy.FillUnknown(&res, "could not parse model response")
		return res
	}

	e.strategy.Fill(&res, payload)
	return res
}

// batch evaluates a slice of rows with one model call. startIndex is the
// source-order position of rows[0]; item indexes in the response are
// relative to the slice. Every row in the slice gets a Result even when the
// whole call fails.
func (e *executor) batch(ctx context.Context, startIndex int, rows []dataset.Row) []models.Result {
	results := make([]models.Result, len(rows))
	projections := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		projections[i] = e.project(row)
		results[i] = models.Result{
			RowIndex:  startIndex + i,
			RowData:   projections[i],
			Errors:    []string{},
			Timestamp: time.Now().UTC(),
		}
	}

	promptText := e.strategy.Prompts().Batch(projections, e.template, e.rules)

	text, err := e.generate(ctx, promptText, "", "")
	if err != nil {
		for i := range results {
			e.recordFailure(&results[i], err)
		}
		return results
	}

	items, err := decodeBatchItems(text)
	if err != nil {
		for i := range results {
			e.strategy.FillUnknown(&results[i], "could not parse batch response")
			results[i].Errors = append(results[i].Errors, err.Error())
		}
		return results
	}

	filled := make([]bool, len(rows))
	for _, item := range items {
		idx, ok := item["index"].(float64)
		if !ok {
			continue
		}
		i := int(idx)
		if i < 0 || i >= len(rows) || filled[i] {
			continue
		}
		e.strategy.Fill(&results[i], item)
		filled[i] = true
	}
	for i := range results {
		if !filled[i] {
			e.strategy.FillUnknown(&results[i], "no result found in batch response")
			results[i].Errors = append(results[i].Errors, "no result found in batch response")
		}
	}
	return results
}

// generate calls the model with transient-failure retry
func (e *executor) generate(ctx context.Context, promptText, mediaPath, mediaKind string) (string, error) {
	var text string
	attempt := 0
	err := retry.Do(ctx, e.retryConfig, func() error {
		if attempt > 0 {
			e.metrics.RetryAttempt(e.client.Provider(), e.client.ModelVersion())
		}
		attempt++
		e.metrics.ModelCall(e.client.Provider(), e.client.ModelVersion())

		var callErr error
		if mediaPath != "" {
			text, callErr = e.client.GenerateWithMedia(ctx, promptText, mediaPath, mediaKind)
		} else {
			text, callErr = e.client.Generate(ctx, promptText)
		}
		return callErr
	})
	return text, err
}

// recordFailure classifies an escaped error and writes it into the Result
func (e *executor) recordFailure(res *models.Result, err error) {
	var msg string
	if retry.IsTransient(err) {
		msg = fmt.Sprintf("AI connection failed: %v", err)
	} else {
		msg = fmt.Sprintf("processing error: %v", err)
	}
	res.Errors = append(res.Errors, msg)
	res.RawError = err.Error()
	e.strategy.FillUnknown(res, msg)
}

// project reduces a row to the columns named in the job's mapping. An empty
// mapping exposes the whole row.
func (e *executor) project(row dataset.Row) map[string]interface{} {
	if len(e.mapping) == 0 {
		out := make(map[string]interface{}, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(map[string]interface{}, len(e.mapping))
	for col := range e.mapping {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}

// mediaValue returns the first configured media column carrying a value.
// Column names are visited in sorted order so the choice is deterministic.
func (e *executor) mediaValue(row dataset.Row) (string, string) {
	if len(e.media) == 0 {
		return "", ""
	}
	var cols []string
	for name, cfg := range e.mapping {
		if cfg.IsMedia() {
			cols = append(cols, name)
		}
	}
	sort.Strings(cols)
	for _, col := range cols {
		if v, ok := row[col]; ok {
			if s, ok := v.(string); ok && s != "" {
				return col, s
			}
		}
	}
	return "", ""
}
