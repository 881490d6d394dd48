//go:build !darwin && !windows

package hotkey

import "golang.design/x/hotkey"

// modCtrl/modAlt/keyQ are zero-value placeholders on platforms this
// library does not expose a verified modifier/key mapping for; Register
// on such a platform returns an error and ListenForShutdown logs it and
// returns without blocking, rather than guessing at an unverified API.
const (
	modCtrl = hotkey.Modifier(0)
	modAlt  = hotkey.Modifier(0)
	keyQ    = hotkey.Key(0)
)

// HasAccessibility always reports true: only macOS gates global hotkey
// registration behind a separate permission grant.
func HasAccessibility() bool {
	return true
}
