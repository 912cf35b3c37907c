// Package xlsparse reads one season spreadsheet and normalizes its rows into
// canonical events. The federation export carries a title banner above the
// actual table, an ambiguous US date format, and plenty of half-empty
// optional columns; this package absorbs all of that.
package xlsparse

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// Result is the outcome of parsing one source file.
type Result struct {
	Events  []model.CanonicalEvent
	Dropped int
}

// Known column headers, matched case-insensitively.
const (
	colName     = "name"
	colDateFrom = "date from"
	colDateTo   = "date to"
	colVenue    = "venue"
	colCountry  = "country"
	colCategory = "category"
	colSeries   = "calendar"
	colClass    = "class"
	colEmail    = "email"
	colWebsite  = "website"
)

// headerScanLimit bounds how deep we look for the header row; the banner
// block above the table is only a few rows tall.
const headerScanLimit = 10

// ParseFile opens the spreadsheet at src.Path and normalizes every data row.
// Row-level failures are dropped and counted, never fatal; a file-level
// failure (unreadable file, no header row) is returned as an error so the
// caller can exclude the whole source.
func ParseFile(src model.SourceFile) (Result, error) {
	f, err := excelize.OpenFile(src.Path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", src.Path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, fmt.Errorf("%s: no sheets", src.Path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", src.Path, err)
	}

	headerIdx, columns := findHeader(rows)
	if headerIdx < 0 {
		return Result{}, fmt.Errorf("%s: header row not found", src.Path)
	}

	var res Result
	for i := headerIdx + 1; i < len(rows); i++ {
		raw := mapRow(rows[i], columns)
		if strings.TrimSpace(raw.Name) == "" && strings.TrimSpace(raw.DateFrom) == "" {
			// Trailing filler row, not a parse failure.
			continue
		}
		ev, err := normalizeRow(raw, src)
		if err != nil {
			res.Dropped++
			appLog.Debug("row dropped", "source", src.Name(), "row", i+1, "reason", err)
			continue
		}
		res.Events = append(res.Events, ev)
	}

	appLog.Info("source parsed",
		"source", src.Name(), "events", len(res.Events), "dropped", res.Dropped)
	return res, nil
}

// findHeader scans the first rows for the header row (the one naming both
// the title and start-date columns) and returns its index plus a
// header→column-index map. Unknown columns are simply absent from the map.
func findHeader(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		columns := make(map[string]int)
		for j, cell := range rows[i] {
			key := strings.ToLower(strings.TrimSpace(cell))
			if key == "" {
				continue
			}
			// EMail appears with inconsistent casing across seasons.
			if key == "e-mail" || key == "e mail" {
				key = colEmail
			}
			if _, seen := columns[key]; !seen {
				columns[key] = j
			}
		}
		if _, okName := columns[colName]; okName {
			if _, okDate := columns[colDateFrom]; okDate {
				return i, columns
			}
		}
	}
	return -1, nil
}

func mapRow(row []string, columns map[string]int) rawRow {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}
	return rawRow{
		Name:     cell(colName),
		DateFrom: cell(colDateFrom),
		DateTo:   cell(colDateTo),
		Venue:    cell(colVenue),
		Country:  cell(colCountry),
		Category: cell(colCategory),
		Series:   cell(colSeries),
		Class:    cell(colClass),
		Email:    cell(colEmail),
		Website:  cell(colWebsite),
	}
}
