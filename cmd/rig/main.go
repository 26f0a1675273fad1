// rig drives an animatronic from a library of recorded clips.
// It runs the layered mixer and serves the control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-animatronic/internal/config"
	"github.com/teslashibe/go-animatronic/internal/log"
	"github.com/teslashibe/go-animatronic/pkg/actuator"
	"github.com/teslashibe/go-animatronic/pkg/clip"
	"github.com/teslashibe/go-animatronic/pkg/mixer"
	"github.com/teslashibe/go-animatronic/pkg/web"
)

func main() {
	if err := run(); err != nil {
		log.Error("rig failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lib := clip.NewLibrary()
	n, err := lib.LoadDir(ctx, cfg.ClipDir)
	if err != nil {
		return fmt.Errorf("failed to load clips: %w", err)
	}
	log.Info("clips loaded", "dir", cfg.ClipDir, "count", n)

	bindings := cfg.Bindings()
	if len(bindings) == 0 {
		bindings = clipBindings(lib)
		log.Warn("no actuators configured, using every actuator the clips animate", "count", len(bindings))
	}
	ids := make([]int, 0, len(bindings))
	for _, b := range bindings {
		ids = append(ids, b.ID)
	}
	if err := lib.Validate(ids); err != nil {
		return err
	}

	driver, err := cfg.Driver()
	if err != nil {
		return err
	}
	bank := actuator.NewBank(driver)

	ctrl := mixer.New(bank, lib, cfg.Mixer())
	for _, b := range bindings {
		if err := ctrl.RegisterActuator(b); err != nil {
			return fmt.Errorf("failed to register actuator %d: %w", b.ID, err)
		}
	}

	if cfg.Playlist != "" {
		p, err := clip.LoadPlaylist(cfg.Playlist)
		if err != nil {
			return err
		}
		if err := lib.ValidatePlaylist(p); err != nil {
			return err
		}
		if err := ctrl.SetPlaylist(p); err != nil {
			return err
		}
		ctrl.Play()
		log.Info("startup playlist running", "file", cfg.Playlist, "entries", p.Len())
	}

	srv := web.NewServer(ctrl, lib, web.Options{
		Listen:            cfg.Server.Listen,
		EnableCORS:        cfg.Server.EnableCORS,
		TelemetryInterval: cfg.Server.TelemetryInterval,
	})

	log.Info("rig starting",
		"frame_rate", cfg.FrameRate,
		"actuators", len(bindings),
		"driver", cfg.Output.Driver,
		"listen", cfg.Server.Listen)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ctrl.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	err = g.Wait()
	stats := bank.Stats()
	log.Info("rig stopped", "writes", stats.Writes, "errors", stats.Errors, "out_of_range", stats.OutOfRange)
	return err
}

// parseFlags loads the config file and applies environment and flag overrides.
func parseFlags() (*config.Config, error) {
	configPath := flag.String("config", "rig.yaml", "Rig config file (defaults are used if missing)")
	listen := flag.String("listen", "", "Control surface address (overrides config)")
	clipDir := flag.String("clips", "", "Clip directory (overrides config)")
	playlist := flag.String("playlist", "", "Playlist to start on boot (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *clipDir != "" {
		cfg.ClipDir = *clipDir
	}
	if *playlist != "" {
		cfg.Playlist = *playlist
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg, cfg.Validate()
}

// clipBindings returns a plain binding for every actuator any clip animates.
func clipBindings(lib *clip.Library) []actuator.Binding {
	seen := make(map[int]bool)
	for _, name := range lib.Names() {
		c, err := lib.Get(name)
		if err != nil {
			continue
		}
		for _, id := range c.Actuators() {
			seen[id] = true
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	bindings := make([]actuator.Binding, 0, len(ids))
	for _, id := range ids {
		bindings = append(bindings, actuator.Binding{ID: id})
	}
	return bindings
}
