// Package acquire obtains the freshest possible spreadsheet for each known
// season without ever leaving the pipeline with zero usable input. The
// fallback chain per season is an explicit state machine:
//
//	AUTOMATED_FETCH -> DIRECT_FETCH -> VERIFY -> FALLBACK_EXISTING -> FAILED
//
// A fresh download is written next to the season file and only renamed over
// it after verification, so a failed attempt never clobbers a previously
// good file.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"racecal/internal/config"
	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// ErrInputExhausted means no season produced a usable source file, fresh or
// existing. Fatal to the run; the previously published feed must be left
// untouched.
var ErrInputExhausted = errors.New("no usable source files for any season")

// State is one node of the per-season acquisition state machine.
type State int

const (
	StateAutomatedFetch State = iota
	StateDirectFetch
	StateVerify
	StateFallbackExisting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAutomatedFetch:
		return "AUTOMATED_FETCH"
	case StateDirectFetch:
		return "DIRECT_FETCH"
	case StateVerify:
		return "VERIFY"
	case StateFallbackExisting:
		return "FALLBACK_EXISTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the terminal result of one season's acquisition.
type Outcome struct {
	Season string
	// Method is how the season's file was obtained; empty when Failed.
	Method model.AcquisitionMethod
	Path   string
	// Stale is set when a pre-existing file is being reused.
	Stale bool
	// Failed is set when the season contributes nothing this run.
	Failed bool
	// Err is the last fetch error observed before the terminal state.
	Err error
}

// fetchFunc attempts to produce a season spreadsheet at dest.
type fetchFunc func(ctx context.Context, season, dest string) error

// Gateway runs the acquisition chain for each configured season.
type Gateway struct {
	dataDir string
	seasons []string
	delay   time.Duration

	browserFetch fetchFunc
	directFetch  fetchFunc
}

// New builds a Gateway wired to the real chromedp and direct-HTTP fetchers.
func New(cfg *config.Config) *Gateway {
	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	browser := &browserFetcher{
		calendarURL: cfg.CalendarURL,
		timeout:     timeout,
		headful:     cfg.Headful,
	}
	direct := newDirectFetcher(cfg.CalendarURL, timeout)

	seasons := cfg.Seasons
	if len(seasons) == 0 {
		seasons = DefaultSeasons(time.Now())
	}

	return &Gateway{
		dataDir:      cfg.DataDir,
		seasons:      seasons,
		delay:        time.Duration(cfg.SeasonDelaySec) * time.Second,
		browserFetch: browser.fetch,
		directFetch:  direct.fetch,
	}
}

// DefaultSeasons returns the current year plus the next two; the federation
// publishes future seasons well in advance.
func DefaultSeasons(now time.Time) []string {
	y := now.Year()
	return []string{
		fmt.Sprint(y),
		fmt.Sprint(y + 1),
		fmt.Sprint(y + 2),
	}
}

// Seasons returns the season labels the gateway will attempt.
func (g *Gateway) Seasons() []string { return g.seasons }

// AcquireAll runs the acquisition chain for every season sequentially, with
// a fixed politeness delay between seasons. Failures are per-season and
// never abort the remaining seasons; cancellation takes effect between
// seasons and simply excludes the rest from this run.
func (g *Gateway) AcquireAll(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(g.seasons))

	for i, season := range g.seasons {
		if err := ctx.Err(); err != nil {
			appLog.Warn("acquisition canceled, remaining seasons skipped",
				"completed", i, "remaining", len(g.seasons)-i)
			break
		}
		if i > 0 && g.delay > 0 {
			select {
			case <-time.After(g.delay):
			case <-ctx.Done():
				continue
			}
		}
		outcomes = append(outcomes, g.acquireSeason(ctx, season))
	}
	return outcomes
}

// acquireSeason walks the state machine for one season. The first terminal
// state encountered wins.
func (g *Gateway) acquireSeason(ctx context.Context, season string) Outcome {
	final := filepath.Join(g.dataDir, season+".xlsx")
	tmp := final + ".tmp"
	defer os.Remove(tmp)

	out := Outcome{Season: season}
	state := StateAutomatedFetch
	var pendingMethod model.AcquisitionMethod
	// afterVerifyFail is where a verification failure falls back to,
	// depending on which fetch produced the candidate file.
	var afterVerifyFail State

	for {
		appLog.Debug("acquisition state", "season", season, "state", state.String())
		switch state {
		case StateAutomatedFetch:
			if err := g.browserFetch(ctx, season, tmp); err != nil {
				out.Err = fmt.Errorf("browser fetch: %w", err)
				appLog.Warn("browser fetch failed", "season", season, "reason", err)
				state = StateDirectFetch
				continue
			}
			pendingMethod = model.MethodBrowser
			afterVerifyFail = StateDirectFetch
			state = StateVerify

		case StateDirectFetch:
			if err := g.directFetch(ctx, season, tmp); err != nil {
				out.Err = fmt.Errorf("direct fetch: %w", err)
				appLog.Warn("direct fetch failed", "season", season, "reason", err)
				state = StateFallbackExisting
				continue
			}
			pendingMethod = model.MethodDirect
			afterVerifyFail = StateFallbackExisting
			state = StateVerify

		case StateVerify:
			if err := verifyDownload(tmp); err != nil {
				out.Err = fmt.Errorf("verify: %w", err)
				appLog.Warn("download failed verification", "season", season, "reason", err)
				os.Remove(tmp)
				state = afterVerifyFail
				continue
			}
			if err := os.Rename(tmp, final); err != nil {
				out.Err = fmt.Errorf("adopt: %w", err)
				state = StateFallbackExisting
				continue
			}
			out.Method = pendingMethod
			out.Path = final
			appLog.Info("season acquired", "season", season, "method", string(pendingMethod))
			return out

		case StateFallbackExisting:
			if info, err := os.Stat(final); err == nil && info.Size() > 0 {
				out.Method = model.MethodExisting
				out.Path = final
				out.Stale = true
				appLog.Warn("using stale existing file for season",
					"season", season, "file", final, "modified", info.ModTime().UTC().Format(time.RFC3339))
				return out
			}
			state = StateFailed

		case StateFailed:
			out.Failed = true
			appLog.Error("season acquisition exhausted all fallbacks", out.Err, "season", season)
			return out
		}
	}
}

// verifyDownload checks that the captured file exists and is non-empty.
func verifyDownload(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("downloaded file is empty")
	}
	return nil
}

// Freshness maps season labels to the acquisition method of this run's
// outcomes, for the scanner's diagnostics.
func Freshness(outcomes []Outcome) map[string]model.AcquisitionMethod {
	m := make(map[string]model.AcquisitionMethod, len(outcomes))
	for _, o := range outcomes {
		if !o.Failed {
			m[o.Season] = o.Method
		}
	}
	return m
}
