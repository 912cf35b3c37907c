package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	appLog "racecal/internal/log"
)

// userAgent is a plain desktop identity; the upstream site serves a reduced
// page to obvious automation.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36"

// pageSettleDelay gives the calendar page time to finish its client-side
// rendering after DOMContentLoaded.
const pageSettleDelay = 5 * time.Second

// downloadWait bounds the wait for the download-completed event after the
// trigger has been clicked.
const downloadWait = 30 * time.Second

// browserFetcher drives a scripted headless-browser session against the
// calendar page and captures the season spreadsheet download.
type browserFetcher struct {
	calendarURL string
	timeout     time.Duration
	headful     bool
}

// fetch navigates to the calendar page, dismisses overlays, selects the
// season, triggers the spreadsheet download and writes the captured file to
// dest. Any failure is recoverable by the caller's fallback chain.
func (b *browserFetcher) fetch(parent context.Context, season, dest string) error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !b.headful),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	defer cancelAlloc()

	ctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()

	ctx, cancelTimeout := context.WithTimeout(ctx, b.timeout)
	defer cancelTimeout()

	downloadDir := filepath.Dir(dest)
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return err
	}

	// The browser names captured downloads by GUID; the completion event
	// tells us which file to adopt.
	downloaded := make(chan string, 1)
	chromedp.ListenTarget(ctx, func(ev any) {
		if p, ok := ev.(*cdpbrowser.EventDownloadProgress); ok {
			if p.State == cdpbrowser.DownloadProgressStateCompleted {
				select {
				case downloaded <- p.GUID:
				default:
				}
			}
		}
	})

	appLog.Info("browser session starting", "season", season, "url", b.calendarURL)

	err := chromedp.Run(ctx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
		chromedp.Navigate(b.calendarURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(pageSettleDelay),
	)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	// Overlay dismissal is best effort; a miss on every matcher is fine.
	if name, ok := clickFirst(ctx, consentMatchers); ok {
		appLog.Info("cookie consent dismissed", "season", season, "matcher", name)
	}
	if name, ok := clickFirst(ctx, overlayMatchers); ok {
		appLog.Info("overlay closed", "season", season, "matcher", name)
	}

	if name, ok := clickFirst(ctx, seasonMatchers(season)); ok {
		appLog.Info("season selected", "season", season, "matcher", name)
	} else {
		appLog.Debug("no season selector found, assuming default season", "season", season)
	}

	name, ok := clickFirst(ctx, downloadMatchers)
	if !ok {
		return fmt.Errorf("no download trigger matched")
	}
	appLog.Info("download triggered", "season", season, "matcher", name)

	// The trigger may open a format menu first.
	if name, ok := clickFirst(ctx, formatMatchers); ok {
		appLog.Debug("spreadsheet format selected", "matcher", name)
	}

	var guid string
	select {
	case guid = <-downloaded:
	case <-time.After(downloadWait):
		return fmt.Errorf("download did not complete within %s", downloadWait)
	case <-ctx.Done():
		return ctx.Err()
	}

	captured := filepath.Join(downloadDir, guid)
	if err := os.Rename(captured, dest); err != nil {
		return fmt.Errorf("adopt download: %w", err)
	}
	appLog.Info("download captured", "season", season, "file", dest)
	return nil
}
