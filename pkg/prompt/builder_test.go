package prompt

import (
	"strings"
	"testing"

	"github.com/tader68/spdata/pkg/dataset"
)

func TestQARowPrompt(t *testing.T) {
	row := map[string]interface{}{"title": "Widget", "price": 9.99}
	rules := &dataset.RuleSet{Rules: []dataset.Rule{{ID: "R1", Title: "No empty titles"}}}

	p := QABuilder{}.Row(row, "Check product data quality.", rules, "")

	for _, want := range []string{
		"Check product data quality.",
		"Widget",
		"R1",
		"is_correct",
		"violated_rules",
		"ONLY a JSON object",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("QA row prompt missing %q", want)
		}
	}
}

func TestQARowPromptWithMedia(t *testing.T) {
	p := QABuilder{}.Row(map[string]interface{}{"id": 1}, "tmpl", nil, "image")
	if !strings.Contains(p, "attached image file") {
		t.Error("Media prompt should mention the attached media kind")
	}
}

func TestQABatchPromptTagsIndexes(t *testing.T) {
	rows := []map[string]interface{}{
		{"title": "first"},
		{"title": "second"},
	}

	p := QABuilder{}.Batch(rows, "tmpl", nil)

	for _, want := range []string{
		`"index": 0`,
		`"index": 1`,
		`"items"`,
		"EVERY element",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("QA batch prompt missing %q", want)
		}
	}
}

func TestLabelRowPrompt(t *testing.T) {
	p := LabelBuilder{}.Row(map[string]interface{}{"text": "great product"}, "Assign sentiment labels.", nil, "")

	for _, want := range []string{"Assign sentiment labels.", "great product", `"labels"`} {
		if !strings.Contains(p, want) {
			t.Errorf("Label row prompt missing %q", want)
		}
	}
	if strings.Contains(p, "is_correct") {
		t.Error("Label prompt should not ask for a QA verdict")
	}
}

func TestLabelBatchPrompt(t *testing.T) {
	rows := []map[string]interface{}{{"text": "a"}, {"text": "b"}, {"text": "c"}}
	p := LabelBuilder{}.Batch(rows, "tmpl", nil)

	if !strings.Contains(p, `"index": 2`) {
		t.Error("Label batch prompt should index all rows")
	}
	if !strings.Contains(p, `"labels"`) {
		t.Error("Label batch prompt should request labels")
	}
}
