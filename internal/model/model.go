// Package model holds the central data types shared by the pipeline stages.
package model

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"
)

// AcquisitionMethod records how a source file ended up on disk.
type AcquisitionMethod string

const (
	// MethodBrowser means the file was downloaded this run via the
	// scripted browser session.
	MethodBrowser AcquisitionMethod = "browser"
	// MethodDirect means the file was downloaded this run via the direct
	// HTTP fallback.
	MethodDirect AcquisitionMethod = "direct"
	// MethodExisting means a file from a previous run (or placed manually)
	// is being reused.
	MethodExisting AcquisitionMethod = "existing"
)

// SourceFile is one acquired season spreadsheet. Immutable once scanned; a
// newer download of the same season supersedes it on disk but the scanner
// always re-derives the working set from what is actually there.
type SourceFile struct {
	// Season is the 4-digit season label parsed from the file name, or ""
	// when the file name carries no recognizable label. Unlabeled files
	// are still eligible input.
	Season string

	Path       string
	Method     AcquisitionMethod
	AcquiredAt time.Time
}

// Name returns a short diagnostic label for the file, preferring the season.
func (s SourceFile) Name() string {
	if s.Season != "" {
		return s.Season
	}
	base := s.Path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return base
}

// CanonicalEvent is the reconciled representation of one real-world event,
// independent of which source file(s) mentioned it.
type CanonicalEvent struct {
	Title    string
	Venue    string
	Country  string
	Category string
	// Series is the federation calendar the event belongs to (e.g. a world
	// cup series label), Class its classification code.
	Series string
	Class  string
	Email  string
	URL    string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Season of the source file this record (or its most authoritative
	// fields) came from; used as the merge tie-breaker.
	Season string

	// Provenance lists the source files the event was observed in.
	Provenance []string
}

// Location joins venue and country into the single display location string.
func (e CanonicalEvent) Location() string {
	switch {
	case e.Venue != "" && e.Country != "":
		return e.Venue + ", " + e.Country
	case e.Venue != "":
		return e.Venue
	default:
		return e.Country
	}
}

// IdentityKey derives the deterministic fingerprint used for deduplication
// and for the feed's stable external identifiers. It depends only on the
// normalized title, the start date and the location, so equivalent rows
// from overlapping season files collapse to one key, and repeated runs
// against unchanged input emit identical identifiers.
func (e CanonicalEvent) IdentityKey() string {
	title := strings.ToLower(strings.Join(strings.Fields(e.Title), " "))
	loc := strings.ToLower(strings.Join(strings.Fields(e.Location()), " "))
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s", title, e.Start.Format("2006-01-02"), loc)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ReconciledEventSet is the deduplicated collection handed to the feed
// synthesizer, ordered ascending by start (ties by identity key). It is
// rebuilt from scratch each run.
type ReconciledEventSet struct {
	Events []CanonicalEvent

	// DroppedRows counts raw rows that failed normalization across all
	// source files this run.
	DroppedRows int

	// Sources lists the files the set was reconciled from.
	Sources []SourceFile
}
