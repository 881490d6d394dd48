// Command frame runs the kiosk photo-frame pipeline end to end:
// Inventory watches the photo library, Manager schedules it, Loader
// decodes it, and Viewer presents it full-screen. See SPEC_FULL.md for
// the full architecture and cmd/frame-updatecheck for the separate
// ambient update-check tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenframe/frame/internal/clock"
	"github.com/lumenframe/frame/internal/config"
	"github.com/lumenframe/frame/internal/decode"
	"github.com/lumenframe/frame/internal/inventory"
	"github.com/lumenframe/frame/internal/loader"
	"github.com/lumenframe/frame/internal/playlist"
	"github.com/lumenframe/frame/internal/present"
	"github.com/lumenframe/frame/internal/viewer"
	"github.com/lumenframe/frame/pkg/hotkey"
	"github.com/lumenframe/frame/util/log"
)

const (
	exitOK           = 0
	exitConfigError  = 2
	exitRuntimeError = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("frame", flag.ContinueOnError)
	playlistNow := fs.String("playlist-now", "", "freeze the playlist clock at this RFC3339 instant, for deterministic testing")
	dryRun := fs.Bool("dry-run", false, "print the next scheduled entries without decoding or presenting them")
	dryRunCount := fs.Int("dry-run-count", 10, "number of entries to print with --dry-run")
	logLevel := fs.String("log-level", "", "override the config file's log-level")
	showVersion := fs.Bool("version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if *showVersion {
		v := config.Version
		if v == "" {
			v = "dev"
		}
		fmt.Printf("%s %s\n", config.ServiceName, v)
		return exitOK
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: frame [flags] <config.toml>")
		return exitConfigError
	}

	cfg, err := config.Load(fs.Arg(0))
	if err != nil {
		log.Printf("config error: %v", err)
		return exitConfigError
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var clk clock.Clock = clock.System{}
	if *playlistNow != "" {
		t, err := time.Parse(time.RFC3339, *playlistNow)
		if err != nil {
			log.Printf("invalid --playlist-now value: %v", err)
			return exitConfigError
		}
		clk = clock.NewFrozen(t)
		log.Printf("playlist clock frozen at %s", t)
	}

	if *dryRun {
		dryRunPlaylist(cfg, clk, *dryRunCount)
		return exitOK
	}

	if err := runFrame(cfg, clk); err != nil {
		log.Printf("fatal: %v", err)
		return exitRuntimeError
	}
	return exitOK
}

// dryRunPlaylist starts only Inventory and Manager, lets the library
// scan settle, then prints the next n scheduled entries without ever
// invoking Decode or Present, per spec.md §6's --dry-run contract.
func dryRunPlaylist(cfg config.Config, clk clock.Clock, n int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inv := inventory.New(cfg.PhotoLibraryPath, clk)
	mgr := playlist.New(playlist.Config{
		NewMultiplicity: cfg.Playlist.NewMultiplicity,
		HalfLife:        cfg.Playlist.HalfLife,
		ShuffleSeed:     shuffleSeed(cfg),
	}, clk, inv.Events(), inv, cfg.LoaderMaxConcurrentDecs)

	go func() { _ = inv.Run(ctx) }()
	go func() { _ = mgr.Run(ctx) }()

	time.Sleep(200 * time.Millisecond) // let the initial scan land

	for i := 0; i < n; i++ {
		select {
		case entry := <-mgr.Dispatch():
			fmt.Printf("%d: %s (copy=%d cycle=%d)\n", i, entry.Key, entry.CopyIndex, entry.CycleID)
		case <-ctx.Done():
			return
		}
	}
}

func shuffleSeed(cfg config.Config) int64 {
	if cfg.StartupShuffleSeed != nil {
		return *cfg.StartupShuffleSeed
	}
	return time.Now().UnixNano()
}

// runFrame wires and runs the full four-stage pipeline until the process
// is asked to stop (SIGINT/SIGTERM or the shutdown hotkey).
func runFrame(cfg config.Config, clk clock.Clock) error {
	sigCtx, stopSig := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSig()

	presenter, err := present.NewFyneWindow(config.ServiceName)
	if err != nil {
		return fmt.Errorf("opening presentation window: %w", err)
	}
	targetW, targetH := presenter.Geometry()

	dec := decode.NewDefault(cfg.FaceCascadePath, cfg.DecodeTimeout)

	inv := inventory.New(cfg.PhotoLibraryPath, clk)
	mgr := playlist.New(playlist.Config{
		NewMultiplicity: cfg.Playlist.NewMultiplicity,
		HalfLife:        cfg.Playlist.HalfLife,
		ShuffleSeed:     shuffleSeed(cfg),
	}, clk, inv.Events(), inv, cfg.LoaderMaxConcurrentDecs)

	preload := make(chan loader.Frame, cfg.ViewerPreloadCount)
	ld := loader.New(mgr.Dispatch(), mgr.LoadResults(), preload, dec, cfg.LoaderMaxConcurrentDecs, targetW, targetH, cfg.DecodeTimeout)

	fadeDuration := time.Duration(cfg.FadeMS) * time.Millisecond
	dwell := time.Duration(cfg.DwellMS) * time.Millisecond
	vw := viewer.New(preload, presenter, mgr, mgr.LoadResults(), fadeDuration, dwell)

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error { return inv.Run(gctx) })
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return ld.Run(gctx) })
	g.Go(func() error { return vw.Run(gctx) })

	if !hotkey.HasAccessibility() {
		log.Printf("hotkey: Accessibility permission not granted; shutdown hotkey will not register")
	}
	g.Go(func() error {
		hotkey.ListenForShutdown(gctx, stopSig)
		return nil
	})

	go func() {
		<-gctx.Done()
		presenter.Quit()
	}()

	presenter.RunMainLoop()
	stopSig()

	if err := g.Wait(); err != nil {
		return err
	}
	presenter.Close()
	return nil
}
