// Package loader reads product-intelligence dataset files from disk and
// turns them into indexable documents. A dataset directory holds JSON
// files of the form {"meta": {...}, "data": [...]}.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
)

// datasetFile mirrors one dataset JSON file.
type datasetFile struct {
	Meta struct {
		DatasetID            string `json:"datasetId"`
		CanonicalProductName string `json:"canonicalProductName"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// LoadDir loads every *.json file in dir (sorted by name) and returns the
// flattened document list. Ids are derived from the file stem, the item
// position, and a running counter, so they are stable across loads.
func LoadDir(dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var docs []domain.Document
	counter := 0

	for _, name := range files {
		fileDocs, err := loadFile(filepath.Join(dir, name), &counter)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}

	return docs, nil
}

func loadFile(path string, counter *int) ([]domain.Document, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read dataset file %s: %w", path, err)
	}

	var file datasetFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse dataset file %s: %w", path, err)
	}

	items, err := decodeItems(file.Data)
	if err != nil {
		return nil, fmt.Errorf("dataset file %s: %w", path, err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".json")
	datasetID := file.Meta.DatasetID
	if datasetID == "" {
		datasetID = stem
	}
	product := file.Meta.CanonicalProductName
	if product == "" {
		product = "Unknown"
	}

	docs := make([]domain.Document, 0, len(items))
	for idx, item := range items {
		content := searchableText(item)
		if content == "" {
			continue
		}
		*counter++

		meta := map[string]any{
			"dataset":     datasetID,
			"product":     product,
			"source_file": filepath.Base(path),
		}
		for _, key := range []string{"type", "label", "question"} {
			if v, ok := item[key].(string); ok && v != "" {
				meta[key] = v
			}
		}

		docs = append(docs, domain.Document{
			ID:       fmt.Sprintf("%s_%d_%d", stem, idx, *counter),
			Content:  content,
			Metadata: meta,
		})
	}

	return docs, nil
}

// decodeItems accepts either a list of objects or a single object;
// anything else (e.g. a bare string) yields no items.
func decodeItems(data json.RawMessage) ([]map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		items := make([]map[string]any, 0, len(list))
		for _, raw := range list {
			var m map[string]any
			if json.Unmarshal(raw, &m) == nil {
				items = append(items, m)
			}
		}
		return items, nil
	}

	var single map[string]any
	if err := json.Unmarshal(data, &single); err == nil {
		return []map[string]any{single}, nil
	}

	return nil, nil
}

// searchableText joins the human-readable fields of an item into the text
// indexed by both signals.
func searchableText(item map[string]any) string {
	var parts []string
	for _, key := range []string{"label", "question", "description", "answer", "content"} {
		if v, ok := item[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
