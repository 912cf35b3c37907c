package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"racecal/internal/model"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestScanSelectsRecognizedFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	touch(t, filepath.Join(dir, "2025.xlsx"), now)
	touch(t, filepath.Join(dir, "2026.xls"), now)
	touch(t, filepath.Join(dir, "notes.txt"), now)
	touch(t, filepath.Join(dir, ".hidden.xlsx"), now)
	touch(t, filepath.Join(dir, "2027.xlsx.tmp"), now)

	files, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}
	if files[0].Season != "2025" || files[1].Season != "2026" {
		t.Errorf("seasons = %s, %s", files[0].Season, files[1].Season)
	}
}

func TestScanNewestWinsPerSeason(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	touch(t, filepath.Join(dir, "uci-2025-old.xlsx"), old)
	touch(t, filepath.Join(dir, "2025.xlsx"), time.Now())

	files, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1 per season", len(files))
	}
	if filepath.Base(files[0].Path) != "2025.xlsx" {
		t.Errorf("selected %s, want the most recently modified", files[0].Path)
	}
}

func TestScanUnlabeledFilesEligible(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "manual-export.xlsx"), time.Now())

	files, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("unlabeled spreadsheet must still be selected, got %d", len(files))
	}
	if files[0].Season != "" {
		t.Errorf("season = %q, want empty", files[0].Season)
	}
	if files[0].Name() != "manual-export.xlsx" {
		t.Errorf("Name() = %q", files[0].Name())
	}
}

func TestScanOldFilesNotExcluded(t *testing.T) {
	dir := t.TempDir()
	ancient := time.Now().Add(-365 * 24 * time.Hour)
	touch(t, filepath.Join(dir, "2024.xlsx"), ancient)

	files, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 {
		t.Error("a file is never excluded solely for being old")
	}
}

func TestScanFreshnessAnnotation(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "2025.xlsx"), time.Now())
	touch(t, filepath.Join(dir, "2026.xlsx"), time.Now())

	files, err := Scan(dir, map[string]model.AcquisitionMethod{
		"2025": model.MethodBrowser,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byID := map[string]model.SourceFile{}
	for _, f := range files {
		byID[f.Season] = f
	}
	if byID["2025"].Method != model.MethodBrowser {
		t.Errorf("2025 method = %s, want browser", byID["2025"].Method)
	}
	if byID["2026"].Method != model.MethodExisting {
		t.Errorf("2026 method = %s, want existing", byID["2026"].Method)
	}
}

func TestScanMissingDir(t *testing.T) {
	files, err := Scan(filepath.Join(t.TempDir(), "absent"), nil)
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("got %d files", len(files))
	}
}
