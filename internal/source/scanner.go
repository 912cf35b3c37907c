// Package source enumerates the locally available season spreadsheets and
// selects the working set for a reconciliation run, independent of whether
// the files were just downloaded or have been sitting there for months.
package source

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// seasonPattern matches a 4-digit season label anywhere in the file name,
// e.g. "2025.xlsx" or "uci-calendar-2026.xls".
var seasonPattern = regexp.MustCompile(`(20\d{2})`)

// recognizedExt reports whether ext (lowercase, with dot) is a spreadsheet
// extension the normalizer can consume.
func recognizedExt(ext string) bool {
	return ext == ".xlsx" || ext == ".xls"
}

// Scan returns every recognized spreadsheet under dir, one file per season.
//
// Policy: a file is never excluded for being old. When several files carry
// the same season label, the most-recently-modified wins for that season.
// Files without a parseable season label are all included as-is. freshness
// tells the scanner which season labels were downloaded this run, so the
// acquisition method can be recorded for diagnostics.
func Scan(dir string, freshness map[string]model.AcquisitionMethod) ([]model.SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	bySeason := make(map[string]model.SourceFile)
	var unlabeled []model.SourceFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if !recognizedExt(strings.ToLower(filepath.Ext(name))) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			appLog.Warn("skipping unreadable source file", "file", name, "reason", err)
			continue
		}

		sf := model.SourceFile{
			Path:       filepath.Join(dir, name),
			Method:     model.MethodExisting,
			AcquiredAt: info.ModTime(),
		}
		if m := seasonPattern.FindString(name); m != "" {
			sf.Season = m
		}
		if method, ok := freshness[sf.Season]; ok && sf.Season != "" {
			sf.Method = method
		}

		if sf.Season == "" {
			unlabeled = append(unlabeled, sf)
			continue
		}
		if prev, ok := bySeason[sf.Season]; !ok || sf.AcquiredAt.After(prev.AcquiredAt) {
			bySeason[sf.Season] = sf
		}
	}

	out := make([]model.SourceFile, 0, len(bySeason)+len(unlabeled))
	for _, sf := range bySeason {
		out = append(out, sf)
	}
	out = append(out, unlabeled...)

	// Deterministic order: season label first, then path.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Season != out[j].Season {
			return out[i].Season < out[j].Season
		}
		return out[i].Path < out[j].Path
	})

	for _, sf := range out {
		appLog.Info("source file selected",
			"season", sf.Name(), "path", sf.Path, "method", string(sf.Method))
	}
	return out, nil
}
