//go:build windows

package hotkey

import "golang.design/x/hotkey"

const (
	modCtrl = hotkey.ModCtrl
	modAlt  = hotkey.ModAlt

	keyQ = hotkey.KeyQ
)

// HasAccessibility always reports true on Windows: global hotkey
// registration there needs no separate OS permission grant.
func HasAccessibility() bool {
	return true
}
