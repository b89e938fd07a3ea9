package engine

import (
	"testing"
)

func TestDecodeModelJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantKey string
		wantErr bool
	}{
		{
			name:    "plain object",
			text:    `{"is_correct": true}`,
			wantKey: "is_correct",
		},
		{
			name:    "markdown fenced",
			text:    "```json\n{\"is_correct\": false}\n```",
			wantKey: "is_correct",
		},
		{
			name:    "bare fence",
			text:    "```\n{\"labels\": {}}\n```",
			wantKey: "labels",
		},
		{
			name:    "surrounded by prose",
			text:    "Here is my answer:\n{\"explanation\": \"fine\"}\nLet me know if you need more.",
			wantKey: "explanation",
		},
		{
			name:    "no JSON at all",
			text:    "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "broken JSON",
			text:    `{"is_correct": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := decodeModelJSON(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeModelJSON() expected error, got %v", payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeModelJSON() error = %v", err)
			}
			if _, ok := payload[tt.wantKey]; !ok {
				t.Errorf("payload missing key %q: %v", tt.wantKey, payload)
			}
		})
	}
}

func TestDecodeBatchItems(t *testing.T) {
	text := "```json\n{\"items\": [{\"index\": 0, \"is_correct\": true}, {\"index\": 1, \"is_correct\": false}]}\n```"
	items, err := decodeBatchItems(text)
	if err != nil {
		t.Fatalf("decodeBatchItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("decodeBatchItems() returned %d items, want 2", len(items))
	}
	if idx, ok := items[1]["index"].(float64); !ok || int(idx) != 1 {
		t.Errorf("second item index = %v, want 1", items[1]["index"])
	}
}

func TestDecodeBatchItemsMissingList(t *testing.T) {
	if _, err := decodeBatchItems(`{"results": []}`); err == nil {
		t.Error("decodeBatchItems() expected error for missing items array")
	}
	if _, err := decodeBatchItems("not json"); err == nil {
		t.Error("decodeBatchItems() expected error for non-JSON text")
	}
}
