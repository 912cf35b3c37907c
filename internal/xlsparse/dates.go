package xlsparse

import (
	"fmt"
	"strings"
	"time"
)

// sourceDateLayouts are the accepted date formats, every one of them
// month-first. The upstream export uses the ambiguous US style, and a
// day-first misread silently produces wrong dates ("01/06" must resolve to
// January 6th, not June 1st), so day-first layouts are deliberately absent.
var sourceDateLayouts = []struct {
	layout string
	timed  bool
}{
	{"1/2/2006 15:04:05", true},
	{"1/2/2006 15:04", true},
	{"1/2/06 15:04", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02 15:04", true},
	{"1/2/2006", false},
	{"1/2/06", false},
	{"1-2-2006", false},
	{"1-2-06", false},
	{"2006-01-02", false},
}

// parseSourceDate parses one source date cell. timed reports whether the
// value carried an explicit time-of-day component.
func parseSourceDate(s string) (t time.Time, timed bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty date")
	}
	for _, cand := range sourceDateLayouts {
		if t, perr := time.ParseInLocation(cand.layout, s, time.UTC); perr == nil {
			return t, cand.timed, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized date %q", s)
}
