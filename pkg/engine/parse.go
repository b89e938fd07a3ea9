package engine

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON object found in model response")

// decodeModelJSON extracts the structured payload from a model's text
// response. Models often wrap the JSON in markdown fences or surround it
// with prose, so a direct unmarshal is tried first and the span between the
// first '{' and the last '}' is the fallback.
func decodeModelJSON(text string) (map[string]interface{}, error) {
	cleaned := stripFences(text)

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
		return payload, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// decodeBatchItems extracts the per-row item list from a batch response.
// The expected shape is {"items": [{"index": n, ...}, ...]}.
func decodeBatchItems(text string) ([]map[string]interface{}, error) {
	payload, err := decodeModelJSON(text)
	if err != nil {
		return nil, err
	}
	raw, ok := payload["items"].([]interface{})
	if !ok {
		return nil, errors.New("batch response has no items array")
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
