package xlsparse

import (
	"fmt"
	"strings"
	"time"

	"racecal/internal/model"
)

// defaultTimedDuration is applied to timed events whose source row carries
// no end time.
const defaultTimedDuration = 3 * time.Hour

// rawRow is one spreadsheet row after column mapping, still untyped text.
// It never leaves this package.
type rawRow struct {
	Name     string
	DateFrom string
	DateTo   string
	Venue    string
	Country  string
	Category string
	Series   string
	Class    string
	Email    string
	Website  string
}

// normalizeRow maps one raw row to a canonical event, or returns an error
// describing why the row was dropped. Dropped rows are never retained as
// partial events.
func normalizeRow(r rawRow, src model.SourceFile) (model.CanonicalEvent, error) {
	title := strings.TrimSpace(r.Name)
	if title == "" {
		return model.CanonicalEvent{}, fmt.Errorf("missing title")
	}

	start, timed, err := parseSourceDate(r.DateFrom)
	if err != nil {
		return model.CanonicalEvent{}, fmt.Errorf("start date: %w", err)
	}

	ev := model.CanonicalEvent{
		Title:      title,
		Venue:      strings.TrimSpace(r.Venue),
		Country:    strings.TrimSpace(r.Country),
		Category:   strings.TrimSpace(r.Category),
		Series:     strings.TrimSpace(r.Series),
		Class:      strings.TrimSpace(r.Class),
		Email:      strings.TrimSpace(r.Email),
		URL:        strings.TrimSpace(r.Website),
		Start:      start,
		AllDay:     !timed,
		Season:     src.Season,
		Provenance: []string{src.Name()},
	}

	ev.End = resolveEnd(ev, r.DateTo)
	return ev, nil
}

// resolveEnd applies the end-date rules: an explicit, sane end wins; timed
// events without one default to start + 3h; all-day events without one are
// single-day. An end before start is discarded rather than inverted.
func resolveEnd(ev model.CanonicalEvent, dateTo string) time.Time {
	if end, _, err := parseSourceDate(dateTo); err == nil && !end.Before(ev.Start) {
		return end
	}
	if ev.AllDay {
		return ev.Start
	}
	return ev.Start.Add(defaultTimedDuration)
}
