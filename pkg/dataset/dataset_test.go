package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain filename", "Photo.JPG", "photo"},
		{"path prefix", "uploads/batch1/Photo_001.png", "photo_001"},
		{"whitespace", "  clip.mp4 ", "clip"},
		{"no extension", "12345", "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKey(tt.value); got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestBuildMediaIndexAliases(t *testing.T) {
	files := []MediaFile{
		{Filename: "image_001.jpg", Path: "/m/image_001.jpg", Type: "image"},
		{Filename: "img_clip.mp4", Path: "/m/img_clip.mp4", Type: "video"},
		{Filename: "item_42.png", Path: "/m/item_42.png", Type: "image"},
	}

	index := BuildMediaIndex(files)

	lookups := map[string]string{
		"image_001": "/m/image_001.jpg",
		"001":       "/m/image_001.jpg", // prefix alias and suffix alias agree here
		"img_clip":  "/m/img_clip.mp4",
		"clip":      "/m/img_clip.mp4",
		"item_42":   "/m/item_42.png",
		"42":        "/m/item_42.png",
	}
	for key, wantPath := range lookups {
		mf, ok := index[key]
		if !ok {
			t.Errorf("Expected index entry for %q", key)
			continue
		}
		if mf.Path != wantPath {
			t.Errorf("index[%q].Path = %q, want %q", key, mf.Path, wantPath)
		}
	}
}

func TestBuildMediaIndexFirstFileWins(t *testing.T) {
	files := []MediaFile{
		{Filename: "a.jpg", Path: "/m/a.jpg"},
		{Filename: "A.png", Path: "/m/A.png"},
	}

	index := BuildMediaIndex(files)
	if index["a"].Path != "/m/a.jpg" {
		t.Errorf("Expected first file to win, got %q", index["a"].Path)
	}
}

func TestFileStoreRowsJSON(t *testing.T) {
	dir := t.TempDir()
	content := `[{"text":"hello","label":"a"},{"text":"world","label":"b"}]`
	if err := os.WriteFile(filepath.Join(dir, "ds1.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(dir, dir, dir)
	rows, err := store.Rows("ds1")
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0]["text"] != "hello" {
		t.Errorf("rows[0][text] = %v, want hello", rows[0]["text"])
	}
}

func TestFileStoreRowsCSV(t *testing.T) {
	dir := t.TempDir()
	content := "text,score\nhello,1\nworld,2\n"
	if err := os.WriteFile(filepath.Join(dir, "ds2.csv"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(dir, dir, dir)
	rows, err := store.Rows("ds2")
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[1]["text"] != "world" {
		t.Errorf("rows[1][text] = %v, want world", rows[1]["text"])
	}
}

func TestFileStoreRowsNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir(), t.TempDir(), t.TempDir())
	if _, err := store.Rows("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreRuleSet(t *testing.T) {
	dir := t.TempDir()
	content := `
name: Product guidelines
rules:
  - id: R1
    title: No empty titles
    description: Every row must have a non-empty title
    severity: high
  - id: R2
    title: Prices are positive
    description: Price column must be > 0
`
	if err := os.WriteFile(filepath.Join(dir, "g1.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(dir, dir, dir)
	rs, err := store.RuleSet("g1")
	if err != nil {
		t.Fatalf("RuleSet failed: %v", err)
	}
	if rs.ID != "g1" {
		t.Errorf("ID = %q, want g1 (filled from filename)", rs.ID)
	}
	if len(rs.Rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rs.Rules))
	}
	if rs.Rules[0].ID != "R1" || rs.Rules[0].Severity != "high" {
		t.Errorf("Unexpected first rule: %+v", rs.Rules[0])
	}
}

func TestFileStoreRuleSetNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir(), t.TempDir(), t.TempDir())
	if _, err := store.RuleSet("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreMediaIndex(t *testing.T) {
	dir := t.TempDir()
	batchDir := filepath.Join(dir, "batch1")
	if err := os.MkdirAll(batchDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"photo_1.jpg", "clip.mp4", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(batchDir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	store := NewFileStore(dir, dir, dir)
	index, err := store.MediaIndex("batch1")
	if err != nil {
		t.Fatalf("MediaIndex failed: %v", err)
	}

	if mf, ok := index["photo_1"]; !ok || mf.Type != "image" {
		t.Errorf("Expected image entry for photo_1, got %+v (ok=%v)", mf, ok)
	}
	if mf, ok := index["clip"]; !ok || mf.Type != "video" {
		t.Errorf("Expected video entry for clip, got %+v (ok=%v)", mf, ok)
	}
	// Non-media files are excluded from the index
	if _, ok := index["notes"]; ok {
		t.Error("Text file should not be indexed as media")
	}
}
