// Package config loads the frame's TOML configuration file into the
// surface named in spec.md §6. Unlike the teacher's fyne-preferences-backed
// config, a kiosk has no GUI settings store, so this is a flat file load —
// the ambient JSON-load-with-defaults pattern the teacher uses in
// config/config.go is kept, generalized to TOML and to the wider knob set
// this spec requires.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Version is the build version, set via -ldflags at build time. Empty
// at "go run" time, matching the teacher's AppVersion convention.
var Version string

// ServiceName identifies this program in logs and its state directory.
const ServiceName = "frame"

// Playlist holds the Manager's weighting-law knobs.
type Playlist struct {
	NewMultiplicity int           `toml:"new-multiplicity"`
	HalfLife        time.Duration `toml:"half-life"`
}

// Config is the complete configuration surface the core reads, per
// spec.md §6.
type Config struct {
	PhotoLibraryPath        string        `toml:"photo-library-path"`
	FadeMS                  int           `toml:"fade-ms"`
	DwellMS                 int           `toml:"dwell-ms"`
	ViewerPreloadCount      int           `toml:"viewer-preload-count"`
	LoaderMaxConcurrentDecs int           `toml:"loader-max-concurrent-decodes"`
	StartupShuffleSeed      *int64        `toml:"startup-shuffle-seed"`
	Playlist                Playlist      `toml:"playlist"`
	LogLevel                string        `toml:"log-level"`
	StateDir                string        `toml:"state-dir"`
	FaceCascadePath         string        `toml:"face-cascade-path"`
	DecodeTimeout           time.Duration `toml:"decode-timeout"`
}

// Defaults returns the configuration defaults named in spec.md §6.
func Defaults() Config {
	return Config{
		FadeMS:                  400,
		DwellMS:                 2000,
		ViewerPreloadCount:      3,
		LoaderMaxConcurrentDecs: 4,
		Playlist: Playlist{
			NewMultiplicity: 3,
			HalfLife:        24 * time.Hour,
		},
		LogLevel:      "info",
		DecodeTimeout: 20 * time.Second,
	}
}

// Load reads and decodes the TOML file at path over top of Defaults().
// Unknown keys are a configuration error: a typo in a kiosk config file
// must fail loudly (exit code 2 per spec.md §6), not silently no-op.
func Load(path string) (Config, error) {
	cfg := Defaults()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PhotoLibraryPath == "" {
		return fmt.Errorf("photo-library-path is required")
	}
	if c.ViewerPreloadCount <= 0 {
		return fmt.Errorf("viewer-preload-count must be positive")
	}
	if c.LoaderMaxConcurrentDecs <= 0 {
		return fmt.Errorf("loader-max-concurrent-decodes must be positive")
	}
	if c.Playlist.HalfLife <= 0 {
		return fmt.Errorf("playlist.half-life must be positive")
	}
	return nil
}
