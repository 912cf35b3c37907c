// Package reconcile merges the normalized events from every selected source
// file into one deduplicated set. Adjacent season exports overlap, so the
// same race routinely appears in two or three files; the identity key
// collapses those to a single canonical event.
package reconcile

import (
	"errors"
	"fmt"
	"sort"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// ErrDuplicateIdentity means a duplicate identity key survived the merge.
// That is an internal defect, never expected input behavior, and is checked
// defensively rather than silently swallowed.
var ErrDuplicateIdentity = errors.New("duplicate identity key in reconciled set")

// Merge reconciles events from all sources into one set with unique
// identity keys, ordered ascending by start (ties broken by identity key).
//
// On a key collision the first-seen record wins, provenance is unioned, and
// conflicting descriptive fields are resolved by preferring the non-empty
// value; when both are non-empty and differ, the value from the later
// season label wins (a newer export is treated as more authoritative).
func Merge(batches ...[]model.CanonicalEvent) (*model.ReconciledEventSet, error) {
	byKey := make(map[string]*model.CanonicalEvent)
	order := make([]string, 0)
	total := 0

	for _, batch := range batches {
		total += len(batch)
		for _, ev := range batch {
			key := ev.IdentityKey()
			existing, ok := byKey[key]
			if !ok {
				clone := ev
				byKey[key] = &clone
				order = append(order, key)
				continue
			}
			mergeInto(existing, ev)
		}
	}

	events := make([]model.CanonicalEvent, 0, len(byKey))
	for _, key := range order {
		events = append(events, *byKey[key])
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].IdentityKey() < events[j].IdentityKey()
	})

	if err := checkUnique(events); err != nil {
		return nil, err
	}

	appLog.Info("reconciled", "input_events", total, "unique_events", len(events))
	return &model.ReconciledEventSet{Events: events}, nil
}

// mergeInto folds a later observation of the same identity into dst.
func mergeInto(dst *model.CanonicalEvent, src model.CanonicalEvent) {
	for _, p := range src.Provenance {
		if !contains(dst.Provenance, p) {
			dst.Provenance = append(dst.Provenance, p)
		}
	}

	// src wins a field conflict only when it comes from a later season.
	later := src.Season > dst.Season
	dst.Venue = pickField(dst.Venue, src.Venue, later)
	dst.Country = pickField(dst.Country, src.Country, later)
	dst.Category = pickField(dst.Category, src.Category, later)
	dst.Series = pickField(dst.Series, src.Series, later)
	dst.Class = pickField(dst.Class, src.Class, later)
	dst.Email = pickField(dst.Email, src.Email, later)
	dst.URL = pickField(dst.URL, src.URL, later)
	if later {
		dst.Season = src.Season
	}
}

// pickField resolves one field conflict: non-empty beats empty; when both
// are non-empty and differ, the later-season value wins.
func pickField(current, candidate string, candidateIsLater bool) string {
	if candidate == "" {
		return current
	}
	if current == "" {
		return candidate
	}
	if candidate != current && candidateIsLater {
		return candidate
	}
	return current
}

// checkUnique is the defensive invariant check: every identity key in the
// output must be unique. A violation indicates a defect in Merge itself.
func checkUnique(events []model.CanonicalEvent) error {
	seen := make(map[string]string, len(events))
	for _, ev := range events {
		key := ev.IdentityKey()
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q and %q share key %s",
				ErrDuplicateIdentity, prev, ev.Title, key)
		}
		seen[key] = ev.Title
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
