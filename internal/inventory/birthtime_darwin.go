//go:build darwin

package inventory

import (
	"os"
	"syscall"
	"time"
)

// platformBirthTime reads the BSD/Darwin Birthtimespec field exposed by
// syscall.Stat_t. Darwin always populates it, unlike Linux's statx-only
// btime which this repo does not attempt without cgo (see SPEC_FULL.md
// §9's recorded Open Question decision).
func platformBirthTime(info os.FileInfo) (time.Time, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec), true
}
