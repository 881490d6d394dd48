// Command frame-updatecheck is a small ambient tool, separate from the
// core pipeline, that checks GitHub for a newer frame release than the
// one currently installed and prints the result. It is meant to be run
// periodically from a kiosk's update timer, outside the presentation
// process itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lumenframe/frame/internal/config"
	"github.com/lumenframe/frame/util"
)

const (
	exitOK           = 0
	exitUpdateFound  = 1
	exitCheckFailed  = 3
	defaultCheckWait = 10 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("frame-updatecheck", flag.ContinueOnError)
	version := fs.String("version", "", "current installed version to compare against (defaults to the build's embedded version)")
	quiet := fs.Bool("quiet", false, "suppress output; only the exit code signals an available update")
	if err := fs.Parse(args); err != nil {
		return exitCheckFailed
	}

	if *version != "" {
		config.Version = *version
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultCheckWait)
	defer cancel()

	result, err := util.CheckForUpdates(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "frame-updatecheck: %v\n", err)
		return exitCheckFailed
	}

	if !*quiet {
		if result.UpdateAvailable {
			fmt.Printf("update available: %s -> %s\n", result.CurrentVersion, result.LatestVersion)
			fmt.Printf("release notes: %s\n", result.ReleaseURL)
		} else {
			fmt.Printf("up to date: %s\n", result.CurrentVersion)
		}
	}

	if result.UpdateAvailable {
		return exitUpdateFound
	}
	return exitOK
}
