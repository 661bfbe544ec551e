package report

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SummaryFile returns where the summary of the report at htmlFile is stored
func SummaryFile(htmlFile string) string {
	return strings.TrimSuffix(htmlFile, filepath.Ext(htmlFile)) + ".json"
}

func writeSummary(htmlFile string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(SummaryFile(htmlFile), data, 0644)
}

// ListSummaries returns the summaries of every finalized report under dir,
// newest first. Paths are made relative to dir.
func ListSummaries(dir string) ([]Summary, error) {
	var out []Summary
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		if _, err := os.Stat(strings.TrimSuffix(path, ".json") + ".html"); err != nil {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var s Summary
		if json.Unmarshal(data, &s) != nil || s.Name == "" {
			return nil
		}
		s.File = relative(dir, s.File)
		s.Package = relative(dir, s.Package)
		s.PDF = relative(dir, s.PDF)
		out = append(out, s)
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Finished.After(out[j].Finished) })
	return out, err
}

func relative(dir, path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
