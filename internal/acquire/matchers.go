package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	appLog "racecal/internal/log"
)

// matcher is one candidate interactive element: a name for logging and a
// selector to click. Matcher lists are evaluated in order until one click
// succeeds; adding a new upstream page variant means appending an entry,
// not touching control flow.
type matcher struct {
	name     string
	selector string
	// xpath selects by XPath instead of CSS; needed for text matching.
	xpath bool
}

// perMatcherTimeout bounds a single click attempt. Misses are expected and
// must fail fast so the chain stays cheap.
const perMatcherTimeout = 3 * time.Second

// consentMatchers dismiss the cookie-consent banner. Best effort: none
// matching is fine.
var consentMatchers = []matcher{
	{name: "cookiescript accept", selector: `#cookiescript_accept`},
	{name: "cookiescript accept all", selector: `#cookiescript_accept_all`},
	{name: "accept-cookies testid", selector: `[data-testid="accept-cookies"]`},
	{name: "cookie-accept class", selector: `.cookie-accept`},
	{name: "accept button text", selector: `//button[contains(., "Accept")]`, xpath: true},
	{name: "ok button text", selector: `//button[contains(., "OK")]`, xpath: true},
}

// overlayMatchers close leftover modals/popups that would block clicks.
// Best effort as well.
var overlayMatchers = []matcher{
	{name: "aria close", selector: `[aria-label="Close"]`},
	{name: "modal close", selector: `.modal-close`},
	{name: "popup close", selector: `.popup-close`},
	{name: "close button text", selector: `//button[contains(., "Close")]`, xpath: true},
}

// downloadMatchers locate the download action. One of these must match;
// none matching is a recoverable season failure.
var downloadMatchers = []matcher{
	{name: "download season text", selector: `//*[contains(text(), "Download season")]`, xpath: true},
	{name: "download aria", selector: `[aria-label*="Download"]`},
	{name: "xls link", selector: `a[href*=".xls"]`},
	{name: "download button class", selector: `.download-button`},
	{name: "download button id", selector: `#download-button`},
	{name: "download button text", selector: `//button[contains(., "Download")]`, xpath: true},
}

// formatMatchers pick the spreadsheet format from the menu the download
// action may open. Best effort: some page variants download directly.
var formatMatchers = []matcher{
	{name: "xls option text", selector: `//*[text()="xls"]`, xpath: true},
	{name: "excel option text", selector: `//*[text()="Excel"]`, xpath: true},
	{name: "xls format attr", selector: `[data-format="xls"]`},
}

// seasonMatchers locate the season selector for the target season, when the
// page exposes one. Best effort: absence means the default season is shown.
func seasonMatchers(season string) []matcher {
	return []matcher{
		{name: "season option", selector: fmt.Sprintf(`option[value=%q]`, season)},
		{name: "season data attr", selector: fmt.Sprintf(`[data-season=%q]`, season)},
		{name: "season button text", selector: fmt.Sprintf(`//button[contains(., %q)]`, season), xpath: true},
	}
}

// clickFirst tries each matcher in order and clicks the first one present,
// returning its name. ok is false when nothing matched.
func clickFirst(ctx context.Context, list []matcher) (string, bool) {
	for _, m := range list {
		if ctx.Err() != nil {
			return "", false
		}
		tctx, cancel := context.WithTimeout(ctx, perMatcherTimeout)
		opts := []chromedp.QueryOption{chromedp.NodeVisible}
		if m.xpath {
			opts = append(opts, chromedp.BySearch)
		} else {
			opts = append(opts, chromedp.ByQuery)
		}
		err := chromedp.Run(tctx, chromedp.Click(m.selector, opts...))
		cancel()
		if err == nil {
			appLog.Debug("matcher clicked", "matcher", m.name)
			return m.name, true
		}
	}
	return "", false
}
