// Package feed turns a reconciled event set into the published iCalendar
// feed. Output is deterministic: identifiers derive only from event identity
// keys, ordering comes in pre-sorted from reconciliation, and the generation
// timestamp is injected by the caller, so regenerating from unchanged input
// reproduces the previous feed byte for byte.
package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// Options configure feed generation. Zero values get sensible defaults.
type Options struct {
	// ProductID becomes the PRODID line. Defaults to DefaultProductID.
	ProductID string
	// Name is the X-WR-CALNAME calendar display name.
	Name string
	// Description is the X-WR-CALDESC calendar description.
	Description string
}

const (
	DefaultProductID = "-//racecal//racecal 1.0//EN"
	defaultCalName   = "Race Calendar"
	uidDomain        = "racecal"
)

// Generate renders the upcoming subset of set as an iCalendar document.
//
// now is injected rather than read from the ambient clock so the
// forward-looking filter is deterministic and testable. All timestamps are
// normalized to UTC; source files carry no timezone, and downstream
// subscribers already depend on the UTC rendering.
func Generate(set *model.ReconciledEventSet, now time.Time, opts Options) string {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.Name == "" {
		opts.Name = defaultCalName
	}
	now = now.UTC()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(opts.ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetXWRCalName(opts.Name)
	if opts.Description != "" {
		cal.SetXWRCalDesc(opts.Description)
	}
	cal.SetXWRTimezone("UTC")
	cal.SetLastModified(now)

	kept := 0
	for _, ev := range set.Events {
		if !upcoming(ev, now) {
			continue
		}
		addEvent(cal, ev, now)
		kept++
	}

	appLog.Info("feed generated", "events", kept, "filtered_out", len(set.Events)-kept)
	return cal.Serialize()
}

// Write atomically replaces the feed at path with content (temp + rename),
// creating the parent directory if needed. The previous feed stays intact
// if anything fails before the rename.
func Write(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".feed-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// upcoming reports whether ev is still current at now. A timed event ending
// exactly at now is kept; one that ended a second earlier is not. All-day
// events count as current through the end of their last day.
func upcoming(ev model.CanonicalEvent, now time.Time) bool {
	if ev.AllDay {
		return !allDayExclusiveEnd(ev).Before(now)
	}
	return !ev.End.Before(now)
}

// allDayExclusiveEnd returns midnight after the event's last day, matching
// the exclusive DTEND convention for DATE values.
func allDayExclusiveEnd(ev model.CanonicalEvent) time.Time {
	last := ev.End
	return time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func addEvent(cal *ics.Calendar, ev model.CanonicalEvent, now time.Time) {
	// The UID derives solely from the identity key: never from generation
	// time or row position, so subscribers see no create/delete churn when
	// the feed is regenerated.
	ve := cal.AddEvent(ev.IdentityKey() + "@" + uidDomain)
	ve.SetDtStampTime(now)
	ve.SetSummary(ev.Title)

	if ev.AllDay {
		ve.SetAllDayStartAt(ev.Start)
		ve.SetAllDayEndAt(allDayExclusiveEnd(ev))
	} else {
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
	}

	if loc := ev.Location(); loc != "" {
		ve.SetLocation(loc)
	}
	if ev.URL != "" {
		ve.SetURL(ev.URL)
	}
	if desc := describe(ev); desc != "" {
		ve.SetDescription(desc)
	}
	if cats := categories(ev); len(cats) > 0 {
		ve.SetProperty(ics.ComponentPropertyCategories, strings.Join(cats, ","))
	}
}

// describe assembles the human-readable description block from the optional
// source columns, one labeled line per present field.
func describe(ev model.CanonicalEvent) string {
	var parts []string
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}
	add("Venue", ev.Venue)
	add("Country", ev.Country)
	add("Calendar", ev.Series)
	add("Class", ev.Class)
	add("Email", ev.Email)
	add("Website", ev.URL)
	if len(ev.Provenance) > 0 {
		parts = append(parts, fmt.Sprintf("Source: %s", strings.Join(ev.Provenance, ", ")))
	}
	return strings.Join(parts, "\n")
}

func categories(ev model.CanonicalEvent) []string {
	var cats []string
	if ev.Category != "" {
		cats = append(cats, ev.Category)
	}
	if ev.Class != "" && ev.Class != ev.Category {
		cats = append(cats, ev.Class)
	}
	return cats
}
