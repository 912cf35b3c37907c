package acquire

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"

	appLog "racecal/internal/log"
)

// directFetcher is the second rung of the fallback chain: fetch the calendar
// page over plain HTTP, discover a spreadsheet link in its HTML and download
// it directly. Cheaper than the browser and occasionally works when the
// scripted session trips over a page change.
type directFetcher struct {
	calendarURL string
	client      *retryablehttp.Client
}

func newDirectFetcher(calendarURL string, timeout time.Duration) *directFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return &directFetcher{calendarURL: calendarURL, client: client}
}

// fetch downloads the season spreadsheet to dest, or returns a recoverable
// error.
func (d *directFetcher) fetch(ctx context.Context, season, dest string) error {
	link, err := d.discoverLink(ctx, season)
	if err != nil {
		return err
	}
	appLog.Info("direct download link discovered", "season", season, "url", link)

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("direct download: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// discoverLink pulls the calendar page and returns the first spreadsheet
// href, preferring links that mention the target season.
func (d *directFetcher) discoverLink(ctx context.Context, season string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", d.calendarURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("calendar page: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	var first, seasonal string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !spreadsheetLink(href) {
			return true
		}
		if first == "" {
			first = href
		}
		if strings.Contains(href, season) || strings.Contains(sel.Text(), season) {
			seasonal = href
			return false
		}
		return true
	})

	link := seasonal
	if link == "" {
		link = first
	}
	if link == "" {
		return "", fmt.Errorf("no spreadsheet link on calendar page")
	}
	return d.absolute(link)
}

func spreadsheetLink(href string) bool {
	h := strings.ToLower(href)
	return strings.Contains(h, ".xlsx") || strings.Contains(h, ".xls") || strings.Contains(h, "excel")
}

func (d *directFetcher) absolute(href string) (string, error) {
	base, err := url.Parse(d.calendarURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
