package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileStore serves datasets, guidelines and media batches from local
// directories. Datasets are `<id>.json` (array of row objects) or `<id>.csv`
// files under dataDir; guidelines are `<id>.yaml` under guidelineDir; media
// batches are subdirectories of mediaDir.
type FileStore struct {
	dataDir      string
	guidelineDir string
	mediaDir     string
}

// NewFileStore creates a directory-backed dataset store
func NewFileStore(dataDir, guidelineDir, mediaDir string) *FileStore {
	return &FileStore{
		dataDir:      dataDir,
		guidelineDir: guidelineDir,
		mediaDir:     mediaDir,
	}
}

// Rows returns the dataset's records in source order
func (s *FileStore) Rows(dataID string) ([]Row, error) {
	jsonPath := filepath.Join(s.dataDir, dataID+".json")
	if _, err := os.Stat(jsonPath); err == nil {
		return s.rowsFromJSON(jsonPath)
	}

	csvPath := filepath.Join(s.dataDir, dataID+".csv")
	if _, err := os.Stat(csvPath); err == nil {
		return s.rowsFromCSV(csvPath)
	}

	return nil, fmt.Errorf("dataset %s: %w", dataID, ErrNotFound)
}

func (s *FileStore) rowsFromJSON(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	return rows, nil
}

func (s *FileStore) rowsFromCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row of %s: %w", path, err)
		}

		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RuleSet returns the parsed guideline, or ErrNotFound
func (s *FileStore) RuleSet(guidelineID string) (*RuleSet, error) {
	path := filepath.Join(s.guidelineDir, guidelineID+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("guideline %s: %w", guidelineID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guideline %s: %w", guidelineID, err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse guideline %s: %w", guidelineID, err)
	}
	if rs.ID == "" {
		rs.ID = guidelineID
	}
	return &rs, nil
}

// MediaIndex returns the batch's files keyed by normalized basename
func (s *FileStore) MediaIndex(batchID string) (map[string]MediaFile, error) {
	dir := filepath.Join(s.mediaDir, batchID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("media batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list media batch %s: %w", batchID, err)
	}

	var files []MediaFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mediaType := MediaTypeForFile(entry.Name())
		if mediaType == "" {
			continue
		}
		files = append(files, MediaFile{
			Filename: entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Type:     mediaType,
		})
	}

	return BuildMediaIndex(files), nil
}
