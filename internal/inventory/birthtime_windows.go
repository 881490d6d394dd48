//go:build windows

package inventory

import (
	"os"
	"syscall"
	"time"
)

// platformBirthTime reads CreationTime from the Win32 file attribute data
// Go's os.FileInfo.Sys() exposes on Windows.
func platformBirthTime(info os.FileInfo) (time.Time, bool) {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, data.CreationTime.Nanoseconds()), true
}
