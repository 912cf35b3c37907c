// Package pipeline runs the full acquisition → scan → normalize →
// reconcile → synthesize sequence once per invocation. Stages hand each
// other immutable collections; nothing survives a run except the files on
// disk and the run-history row.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"racecal/internal/acquire"
	"racecal/internal/config"
	"racecal/internal/feed"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/reconcile"
	"racecal/internal/runlog"
	"racecal/internal/source"
	"racecal/internal/xlsparse"
)

// Result summarizes one pipeline run for callers (CLI exit status, the
// scheduler's log line, the debug UI).
type Result struct {
	Set            *model.ReconciledEventSet
	EventCount     int
	PublishedCount int
	DroppedRows    int
	Sources        []model.SourceFile
	MissingSeasons []string
	// Degraded means the feed was published but with reduced scope (some
	// seasons missing or stale). Still a success.
	Degraded bool
}

// acquirer is what the pipeline needs from the acquisition gateway;
// narrowed to an interface so tests can substitute canned outcomes.
type acquirer interface {
	AcquireAll(ctx context.Context) []acquire.Outcome
}

// Pipeline wires the stages together.
type Pipeline struct {
	cfg     *config.Config
	gateway acquirer
	history *runlog.DB

	// now supplies the synthesizer's clock; injectable for tests.
	now func() time.Time
}

// New builds a pipeline. history may be nil to skip run recording.
func New(cfg *config.Config, history *runlog.DB) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		gateway: acquire.New(cfg),
		history: history,
		now:     time.Now,
	}
}

// Run executes one full pipeline pass. A degraded run (some seasons
// missing) returns a Result and nil error; only input exhaustion or a
// reconciliation invariant violation is an error, and in both cases the
// previously published feed is left untouched.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := p.now()
	res := &Result{}

	outcomes := p.gateway.AcquireAll(ctx)
	stale := false
	for _, o := range outcomes {
		switch {
		case o.Failed:
			res.MissingSeasons = append(res.MissingSeasons, o.Season)
		case o.Stale:
			stale = true
		}
	}
	if len(res.MissingSeasons) > 0 {
		appLog.Warn("seasons missing from this run",
			"seasons", strings.Join(res.MissingSeasons, ","))
	}

	files, err := source.Scan(p.cfg.DataDir, acquire.Freshness(outcomes))
	if err != nil {
		return nil, p.finish(res, started, runlog.StatusFatal, fmt.Errorf("scanning sources: %w", err))
	}

	var batches [][]model.CanonicalEvent
	var usable []model.SourceFile
	for _, sf := range files {
		parsed, err := xlsparse.ParseFile(sf)
		if err != nil {
			appLog.Error("source file unusable, excluded from run", err, "source", sf.Name())
			continue
		}
		usable = append(usable, sf)
		batches = append(batches, parsed.Events)
		res.DroppedRows += parsed.Dropped
	}
	res.Sources = usable

	if len(usable) == 0 {
		// Never publish an empty feed over a good one.
		return nil, p.finish(res, started, runlog.StatusFatal, acquire.ErrInputExhausted)
	}

	set, err := reconcile.Merge(batches...)
	if err != nil {
		return nil, p.finish(res, started, runlog.StatusFatal, err)
	}
	set.DroppedRows = res.DroppedRows
	set.Sources = usable
	res.Set = set
	res.EventCount = len(set.Events)

	content := feed.Generate(set, p.now(), feed.Options{
		Name:        "UCI MTB Calendar",
		Description: "Mountain bike race calendar, reconciled from season exports",
	})
	res.PublishedCount = strings.Count(content, "BEGIN:VEVENT")
	if err := feed.Write(p.cfg.FeedPath, content); err != nil {
		return nil, p.finish(res, started, runlog.StatusFatal, fmt.Errorf("publishing feed: %w", err))
	}

	res.Degraded = len(res.MissingSeasons) > 0 || stale
	status := runlog.StatusOK
	if res.Degraded {
		status = runlog.StatusDegraded
	}
	appLog.Info("pipeline run complete",
		"status", status,
		"events", res.EventCount,
		"published", res.PublishedCount,
		"dropped_rows", res.DroppedRows,
		"sources", len(usable),
	)
	return res, p.finish(res, started, status, nil)
}

// finish records the run outcome and passes runErr through.
func (p *Pipeline) finish(res *Result, started time.Time, status string, runErr error) error {
	if runErr != nil {
		appLog.Error("pipeline run failed", runErr)
	}
	if p.history != nil {
		detail := ""
		if runErr != nil {
			detail = runErr.Error()
		}
		rec := runlog.Run{
			StartedAt:      started,
			FinishedAt:     p.now(),
			Status:         status,
			Events:         res.EventCount,
			DroppedRows:    res.DroppedRows,
			SourceCount:    len(res.Sources),
			MissingSeasons: res.MissingSeasons,
			Detail:         detail,
		}
		if err := p.history.Record(rec); err != nil {
			appLog.Error("failed to record run history", err)
		}
	}
	return runErr
}
