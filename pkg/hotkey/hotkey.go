// Package hotkey registers the single global shortcut a kiosk frame
// exposes: a shutdown trigger. It keeps the register-then-listen-on-a-
// goroutine shape from this corpus's desktop hotkey dispatcher, trimmed
// from that dispatcher's full wallpaper control surface (next/previous/
// trash/favorite/pause/monitor-targeting) down to the one action this
// spec's non-goals leave room for: an operator-facing way to stop a
// kiosk process without SSHing in.
package hotkey

import (
	"context"

	"golang.design/x/hotkey"

	"github.com/lumenframe/frame/util/log"
)

// ListenForShutdown registers the platform shutdown combo and blocks,
// invoking trigger each time it fires, until ctx is cancelled.
func ListenForShutdown(ctx context.Context, trigger func()) {
	hk := hotkey.New([]hotkey.Modifier{modCtrl, modAlt}, keyQ)
	if err := hk.Register(); err != nil {
		log.Printf("hotkey: failed to register shutdown hotkey: %v", err)
		return
	}
	log.Printf("hotkey: registered shutdown hotkey")
	defer hk.Unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
			log.Printf("hotkey: shutdown hotkey pressed")
			trigger()
		}
	}
}
