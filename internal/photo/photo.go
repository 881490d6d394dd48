// Package photo defines the data model shared by every pipeline stage:
// the canonical photo identity, its immutable record, and the scheduled
// entries the Manager hands to the Loader.
package photo

import (
	"path/filepath"
	"strings"
	"time"
)

// Key is the canonical identity of a photo: its absolute, cleaned
// filesystem path. Two Keys are equal iff the underlying paths are
// byte-identical after normalization.
type Key string

// NewKey normalizes a filesystem path into a Key.
func NewKey(path string) Key {
	return Key(filepath.Clean(path))
}

// String returns the underlying path.
func (k Key) String() string {
	return string(k)
}

// ExtensionClass is the normalized file-type bucket derived at discovery.
type ExtensionClass int

const (
	// ExtUnknown is never assigned to a live record; Inventory filters
	// unrecognized extensions before they reach the Manager.
	ExtUnknown ExtensionClass = iota
	ExtJPEG
	ExtPNG
	ExtGIF
	ExtWebP
	ExtBMP
	ExtTIFF
)

func (c ExtensionClass) String() string {
	switch c {
	case ExtJPEG:
		return "jpg"
	case ExtPNG:
		return "png"
	case ExtGIF:
		return "gif"
	case ExtWebP:
		return "webp"
	case ExtBMP:
		return "bmp"
	case ExtTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

var extensionTable = map[string]ExtensionClass{
	".jpg":  ExtJPEG,
	".jpeg": ExtJPEG,
	".png":  ExtPNG,
	".gif":  ExtGIF,
	".webp": ExtWebP,
	".bmp":  ExtBMP,
	".tif":  ExtTIFF,
	".tiff": ExtTIFF,
}

// ClassifyExtension maps a file extension (with or without the leading
// dot, any case) to its ExtensionClass. It returns ExtUnknown, false for
// anything not on the fixed allow-list named in spec.md §4.1.
func ClassifyExtension(ext string) (ExtensionClass, bool) {
	if ext == "" {
		return ExtUnknown, false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	class, ok := extensionTable[strings.ToLower(ext)]
	return class, ok
}

// IsAllowedExt reports whether path's extension is on the allow-list.
func IsAllowedExt(path string) bool {
	_, ok := ClassifyExtension(filepath.Ext(path))
	return ok
}

// Record is the authoritative, immutable-after-creation description of a
// live photo. CreatedAt is set once at discovery and never mutated; a
// file removed and re-added gets a fresh Record with a fresh CreatedAt.
type Record struct {
	Key       Key
	CreatedAt time.Time
	Ext       ExtensionClass
}

// Age returns now - CreatedAt, floored at zero so a clock that runs
// slightly behind CreatedAt (e.g. a frozen test clock set before a
// discovery timestamp) never produces a negative age.
func (r Record) Age(now time.Time) time.Duration {
	a := now.Sub(r.CreatedAt)
	if a < 0 {
		return 0
	}
	return a
}

// ScheduledEntry is one slot in a playlist cycle: a specific copy of a
// specific photo, tagged with the generation of the cycle that produced
// it so stale returns can be rejected.
type ScheduledEntry struct {
	Key       Key
	CopyIndex uint32
	CycleID   uint64
}
