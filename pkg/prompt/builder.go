package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tader68/spdata/pkg/dataset"
)

// Builder constructs the text sent to the model for one row or one batch of
// rows. The driver never inspects prompt contents; it only relays the
// builder's output to the model client.
type Builder interface {
	// Row builds a single-row prompt. mediaKind is non-empty when a media
	// file accompanies the request.
	Row(row map[string]interface{}, template string, rules *dataset.RuleSet, mediaKind string) string
	// Batch builds a multi-row prompt. The response must contain one item
	// per input row, each tagged with its input index.
	Batch(rows []map[string]interface{}, template string, rules *dataset.RuleSet) string
}

// QABuilder renders prompts asking the model to verify rows against
// guideline rules and report a correctness verdict.
type QABuilder struct{}

// LabelBuilder renders prompts asking the model to assign labels to rows.
type LabelBuilder struct{}

const qaSchema = `{
  "is_correct": true/false,
  "errors": ["problem 1", "problem 2"],
  "suggestions": ["suggestion 1"],
  "violated_rules": ["RULE_ID_01"],
  "confidence_score": 0-100,
  "explanation": "detailed reasoning"
}`

const labelSchema = `{
  "labels": {"<label key>": "<label value>"},
  "explanation": "detailed reasoning",
  "errors": []
}`

// Row builds a single-row QA prompt
func (QABuilder) Row(row map[string]interface{}, template string, rules *dataset.RuleSet, mediaKind string) string {
	var b strings.Builder
	b.WriteString(template)
	b.WriteString("\n")
	writeRules(&b, rules)

	if mediaKind != "" {
		fmt.Fprintf(&b, "\nAn attached %s file belongs to this row. Evaluate the row considering both the data fields and the %s content.\n", mediaKind, mediaKind)
	}

	b.WriteString("\nData row to verify:\n")
	b.WriteString(marshalIndent(row))
	b.WriteString("\n\nRespond with ONLY a JSON object, no surrounding prose, in this format:\n")
	b.WriteString(qaSchema)
	return b.String()
}

// Batch builds a multi-row QA prompt; every response item must echo its index
func (QABuilder) Batch(rows []map[string]interface{}, template string, rules *dataset.RuleSet) string {
	var b strings.Builder
	b.WriteString(template)
	b.WriteString("\n")
	writeRules(&b, rules)

	b.WriteString("\nYou will verify a LIST of data rows in one pass.\n")
	b.WriteString("Rows to verify (each element carries an \"index\" identifying it within the batch):\n")
	b.WriteString(marshalIndent(indexedRows(rows)))
	b.WriteString("\n\nEvaluate EVERY element of the list; do not merge or skip any.\n")
	b.WriteString("Respond with ONLY a JSON object of the form {\"items\": [...]} where each item is:\n")
	b.WriteString("{\n  \"index\": <the element's index>,\n" + strings.TrimPrefix(qaSchema, "{\n"))
	return b.String()
}

// Row builds a single-row labeling prompt
func (LabelBuilder) Row(row map[string]interface{}, template string, rules *dataset.RuleSet, mediaKind string) string {
	var b strings.Builder
	b.WriteString(template)
	b.WriteString("\n")
	writeRules(&b, rules)

	if mediaKind != "" {
		fmt.Fprintf(&b, "\nAn attached %s file belongs to this row. Assign labels considering both the data fields and the %s content.\n", mediaKind, mediaKind)
	}

	b.WriteString("\nData row to label:\n")
	b.WriteString(marshalIndent(row))
	b.WriteString("\n\nRespond with ONLY a JSON object, no surrounding prose, in this format:\n")
	b.WriteString(labelSchema)
	return b.String()
}

// Batch builds a multi-row labeling prompt
func (LabelBuilder) Batch(rows []map[string]interface{}, template string, rules *dataset.RuleSet) string {
	var b strings.Builder
	b.WriteString(template)
	b.WriteString("\n")
	writeRules(&b, rules)

	b.WriteString("\nYou will label a LIST of data rows in one pass.\n")
	b.WriteString("Rows to label (each element carries an \"index\" identifying it within the batch):\n")
	b.WriteString(marshalIndent(indexedRows(rows)))
	b.WriteString("\n\nLabel EVERY element of the list; do not merge or skip any.\n")
	b.WriteString("Respond with ONLY a JSON object of the form {\"items\": [...]} where each item is:\n")
	b.WriteString("{\n  \"index\": <the element's index>,\n" + strings.TrimPrefix(labelSchema, "{\n"))
	return b.String()
}

func writeRules(b *strings.Builder, rules *dataset.RuleSet) {
	if rules == nil || len(rules.Rules) == 0 {
		return
	}
	b.WriteString("\nStructured rules extracted from the guideline:\n")
	b.WriteString(marshalIndent(rules.Rules))
	b.WriteString("\nWhen a rule is violated, reference it by its id in \"violated_rules\".\n")
}

func indexedRows(rows []map[string]interface{}) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(rows))
	for i, row := range rows {
		items = append(items, map[string]interface{}{
			"index": i,
			"data":  row,
		})
	}
	return items
}

func marshalIndent(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
