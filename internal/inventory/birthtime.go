package inventory

import (
	"io/fs"
	"os"
	"time"
)

// birthTime resolves a discovered file's creation timestamp per the
// fallback order named in spec.md §4.1: birth time, then modification
// time, then (via birthTimeOrNow) current wall clock. d may be nil when
// the caller already has a fresh os.Stat result instead of a DirEntry.
func birthTime(path string, d fs.DirEntry) time.Time {
	if d != nil {
		if info, err := d.Info(); err == nil {
			if bt, ok := platformBirthTime(info); ok {
				return bt
			}
			return info.ModTime()
		}
	}
	return birthTimeOrNow(path)
}

// birthTimeOrNow stats path directly, used when the caller only has a
// path (e.g. a freshly created fsnotify event target).
func birthTimeOrNow(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Now()
	}
	if bt, ok := platformBirthTime(info); ok {
		return bt
	}
	return info.ModTime()
}
