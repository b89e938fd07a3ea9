package dataset

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when a dataset, rule set or media batch does not exist
	ErrNotFound = errors.New("not found")
)

// Row is one record of a tabular dataset, keyed by column name
type Row map[string]interface{}

// Rule is one guideline rule the model checks rows against
type Rule struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Severity    string `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// RuleSet is a parsed guideline document
type RuleSet struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Rules []Rule `yaml:"rules" json:"rules"`
}

// MediaFile describes one uploaded media file in a batch
type MediaFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Type     string `json:"type"` // image, audio, video
}

// Store supplies job inputs. Jobs reference datasets, guidelines and media
// batches by id so checkpoints stay small and inputs can be re-fetched on
// resume.
type Store interface {
	// Rows returns the dataset's records in source order
	Rows(dataID string) ([]Row, error)
	// RuleSet returns the parsed guideline, or ErrNotFound
	RuleSet(guidelineID string) (*RuleSet, error)
	// MediaIndex returns the batch's files keyed by normalized basename
	MediaIndex(batchID string) (map[string]MediaFile, error)
}

// NormalizeKey reduces a filename or cell value to the lookup key used by
// media indexes: basename, extension stripped, lowercased.
func NormalizeKey(value string) string {
	base := filepath.Base(strings.TrimSpace(value))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// BuildMediaIndex indexes files by normalized basename. Columns often hold a
// shortened form of the filename, so two alias families are indexed too:
// the name with a leading "image_"/"img_" prefix removed, and the suffix
// after the last underscore. First file wins on collision.
func BuildMediaIndex(files []MediaFile) map[string]MediaFile {
	index := make(map[string]MediaFile)

	addAlias := func(key string, mf MediaFile) {
		if key == "" {
			return
		}
		if _, exists := index[key]; !exists {
			index[key] = mf
		}
	}

	for _, mf := range files {
		base := NormalizeKey(mf.Filename)
		if base == "" {
			continue
		}
		addAlias(base, mf)

		for _, prefix := range []string{"image_", "img_"} {
			if strings.HasPrefix(base, prefix) {
				addAlias(strings.TrimPrefix(base, prefix), mf)
			}
		}

		if i := strings.LastIndex(base, "_"); i >= 0 && i+1 < len(base) {
			addAlias(base[i+1:], mf)
		}
	}

	return index
}

// MediaTypeForFile guesses the media kind from the file extension
func MediaTypeForFile(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return "image"
	case ".mp3", ".wav", ".ogg", ".m4a", ".flac", ".aac":
		return "audio"
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return "video"
	default:
		return ""
	}
}
