package engine

import (
	"github.com/tader68/spdata/pkg/models"
	"github.com/tader68/spdata/pkg/prompt"
)

// Strategy supplies the kind-specific pieces of job processing: how prompts
// are built and how a decoded model payload maps onto a Result's outcome
// fields. The driver and executor are otherwise identical for QA and
// labeling jobs.
type Strategy interface {
	Kind() models.JobKind
	Prompts() prompt.Builder
	// Fill copies the decoded payload into the result's outcome fields
	Fill(res *models.Result, payload map[string]interface{})
	// FillUnknown sets the neutral outcome used when no model answer is
	// available for the row
	FillUnknown(res *models.Result, explanation string)
}

// StrategyFor returns the strategy for a job kind, or nil for unknown kinds
func StrategyFor(kind models.JobKind) Strategy {
	switch kind {
	case models.JobKindQA:
		return qaStrategy{}
	case models.JobKindLabel:
		return labelStrategy{}
	default:
		return nil
	}
}

type qaStrategy struct{}

func (qaStrategy) Kind() models.JobKind    { return models.JobKindQA }
func (qaStrategy) Prompts() prompt.Builder { return prompt.QABuilder{} }

func (qaStrategy) Fill(res *models.Result, payload map[string]interface{}) {
	if v, ok := payload["is_correct"].(bool); ok {
		res.IsCorrect = &v
	}
	res.ViolatedRules = stringSlice(payload["violated_rules"])
	if s := stringSlice(payload["suggestions"]); len(s) > 0 {
		res.Suggestions = s
	}
	if f, ok := payload["confidence_score"].(float64); ok {
		res.ConfidenceScore = f
	}
	if s, ok := payload["explanation"].(string); ok {
		res.Explanation = s
	}
	res.Errors = append(res.Errors, stringSlice(payload["errors"])...)
}

func (qaStrategy) FillUnknown(res *models.Result, explanation string) {
	res.IsCorrect = nil
	res.ViolatedRules = []string{}
	res.Explanation = explanation
}

type labelStrategy struct{}

func (labelStrategy) Kind() models.JobKind    { return models.JobKindLabel }
func (labelStrategy) Prompts() prompt.Builder { return prompt.LabelBuilder{} }

func (labelStrategy) Fill(res *models.Result, payload map[string]interface{}) {
	if raw, ok := payload["labels"].(map[string]interface{}); ok {
		labels := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				labels[k] = s
			}
		}
		res.Labels = labels
	}
	if s, ok := payload["explanation"].(string); ok {
		res.Explanation = s
	}
	res.Errors = append(res.Errors, stringSlice(payload["errors"])...)
}

func (labelStrategy) FillUnknown(res *models.Result, explanation string) {
	res.Labels = nil
	res.Explanation = explanation
}

// stringSlice converts a decoded JSON array to strings, never returning nil
func stringSlice(v interface{}) []string {
	out := []string{}
	raw, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
