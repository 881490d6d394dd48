//go:build !darwin && !windows

package inventory

import (
	"os"
	"time"
)

// platformBirthTime reports no birth time on platforms (notably Linux)
// where the standard os.FileInfo does not expose one without statx and
// cgo. Per SPEC_FULL.md §9, this repo accepts the modification-time
// fallback on those platforms rather than shell out to statx.
func platformBirthTime(info os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
