//go:build darwin

package hotkey

import "golang.design/x/hotkey"

/*
#cgo LDFLAGS: -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>

int checkAccessibilityNative() {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

// HasAccessibility reports whether the process holds the Accessibility
// permission golang.design/x/hotkey needs to register a global shortcut
// on macOS, so cmd/frame can log a clear hint instead of a silent
// registration failure.
func HasAccessibility() bool {
	return C.checkAccessibilityNative() != 0
}

const (
	modCtrl = hotkey.ModCmd
	modAlt  = hotkey.ModOption

	keyQ = hotkey.KeyQ
)
