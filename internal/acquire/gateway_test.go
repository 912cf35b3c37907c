package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"racecal/internal/model"
)

func testGateway(dir string, seasons []string, browser, direct fetchFunc) *Gateway {
	return &Gateway{
		dataDir:      dir,
		seasons:      seasons,
		browserFetch: browser,
		directFetch:  direct,
	}
}

func writeDest(content string) fetchFunc {
	return func(_ context.Context, _, dest string) error {
		return os.WriteFile(dest, []byte(content), 0o644)
	}
}

func failFetch(msg string) fetchFunc {
	return func(context.Context, string, string) error {
		return errors.New(msg)
	}
}

func TestAcquireSeasonBrowserSuccess(t *testing.T) {
	dir := t.TempDir()
	g := testGateway(dir, []string{"2025"}, writeDest("spreadsheet bytes"), failFetch("direct should not run"))

	out := g.acquireSeason(context.Background(), "2025")
	if out.Failed {
		t.Fatalf("unexpected failure: %v", out.Err)
	}
	if out.Method != model.MethodBrowser {
		t.Errorf("method = %s, want browser", out.Method)
	}
	if out.Stale {
		t.Error("fresh download must not be marked stale")
	}
	data, err := os.ReadFile(filepath.Join(dir, "2025.xlsx"))
	if err != nil || string(data) != "spreadsheet bytes" {
		t.Errorf("adopted file wrong: %q, %v", data, err)
	}
}

func TestAcquireSeasonFallsBackToDirect(t *testing.T) {
	dir := t.TempDir()
	g := testGateway(dir, []string{"2025"}, failFetch("browser broken"), writeDest("direct bytes"))

	out := g.acquireSeason(context.Background(), "2025")
	if out.Failed {
		t.Fatalf("unexpected failure: %v", out.Err)
	}
	if out.Method != model.MethodDirect {
		t.Errorf("method = %s, want direct", out.Method)
	}
}

func TestAcquireSeasonEmptyDownloadFailsVerification(t *testing.T) {
	dir := t.TempDir()
	// Browser "succeeds" but produces an empty file; verification must
	// treat that as a failure and continue down the chain.
	g := testGateway(dir, []string{"2025"}, writeDest(""), writeDest("direct bytes"))

	out := g.acquireSeason(context.Background(), "2025")
	if out.Failed {
		t.Fatalf("unexpected failure: %v", out.Err)
	}
	if out.Method != model.MethodDirect {
		t.Errorf("method = %s, want direct after empty browser download", out.Method)
	}
}

func TestAcquireSeasonKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "2025.xlsx")
	if err := os.WriteFile(existing, []byte("last month's data"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := testGateway(dir, []string{"2025"}, failFetch("down"), failFetch("down"))
	out := g.acquireSeason(context.Background(), "2025")
	if out.Failed {
		t.Fatalf("unexpected failure: %v", out.Err)
	}
	if out.Method != model.MethodExisting || !out.Stale {
		t.Errorf("want stale existing fallback, got method=%s stale=%v", out.Method, out.Stale)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "last month's data" {
		t.Errorf("existing file was modified: %q", data)
	}
}

func TestAcquireSeasonFailedDownloadNeverClobbersGoodFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "2025.xlsx")
	if err := os.WriteFile(existing, []byte("known good"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Both fetchers produce empty (invalid) files.
	g := testGateway(dir, []string{"2025"}, writeDest(""), writeDest(""))
	out := g.acquireSeason(context.Background(), "2025")

	if out.Method != model.MethodExisting {
		t.Errorf("method = %s, want existing", out.Method)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "known good" {
		t.Errorf("good file clobbered by failed download: %q", data)
	}
	if _, err := os.Stat(existing + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestAcquireSeasonTotalFailure(t *testing.T) {
	dir := t.TempDir()
	g := testGateway(dir, []string{"2030"}, failFetch("down"), failFetch("down"))

	out := g.acquireSeason(context.Background(), "2030")
	if !out.Failed {
		t.Fatal("want failure when no fallback remains")
	}
	if out.Err == nil {
		t.Error("failed outcome should carry the last error")
	}
}

func TestAcquireAllIsolatesSeasonFailures(t *testing.T) {
	dir := t.TempDir()
	browser := func(_ context.Context, season, dest string) error {
		if season == "2026" {
			return errors.New("2026 page broken")
		}
		return os.WriteFile(dest, []byte("data "+season), 0o644)
	}
	g := testGateway(dir, []string{"2025", "2026", "2027"}, browser, failFetch("no direct"))

	outcomes := g.AcquireAll(context.Background())
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	var failed, ok int
	for _, o := range outcomes {
		if o.Failed {
			failed++
			if o.Season != "2026" {
				t.Errorf("unexpected failed season %s", o.Season)
			}
		} else {
			ok++
		}
	}
	if ok != 2 || failed != 1 {
		t.Errorf("ok=%d failed=%d, want 2/1", ok, failed)
	}
}

func TestAcquireAllCancellationSkipsRemainingSeasons(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	browser := func(_ context.Context, season, dest string) error {
		calls++
		cancel() // operator abort after the first season
		return os.WriteFile(dest, []byte("data"), 0o644)
	}
	g := testGateway(dir, []string{"2025", "2026", "2027"}, browser, failFetch("no"))

	outcomes := g.AcquireAll(ctx)
	if calls != 1 {
		t.Errorf("browser called %d times, want 1", calls)
	}
	if len(outcomes) != 1 {
		t.Errorf("got %d outcomes, want 1 (rest excluded, not corrupted)", len(outcomes))
	}
}

func TestDefaultSeasons(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got := DefaultSeasons(now)
	want := []string{"2025", "2026", "2027"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("seasons[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFreshness(t *testing.T) {
	outcomes := []Outcome{
		{Season: "2025", Method: model.MethodBrowser},
		{Season: "2026", Failed: true},
		{Season: "2027", Method: model.MethodExisting, Stale: true},
	}
	m := Freshness(outcomes)
	if m["2025"] != model.MethodBrowser {
		t.Errorf("2025 = %s", m["2025"])
	}
	if _, ok := m["2026"]; ok {
		t.Error("failed season must not appear in freshness map")
	}
	if m["2027"] != model.MethodExisting {
		t.Errorf("2027 = %s", m["2027"])
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateAutomatedFetch:   "AUTOMATED_FETCH",
		StateDirectFetch:      "DIRECT_FETCH",
		StateVerify:           "VERIFY",
		StateFallbackExisting: "FALLBACK_EXISTING",
		StateFailed:           "FAILED",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("%d.String() = %s, want %s", s, s.String(), want)
		}
	}
}
