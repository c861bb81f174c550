// Command memsim runs the kernel's frame allocator and page table translator
// on a simulated machine described by a YAML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"etheros/internal/machine"

	"github.com/lmittmann/tint"
)

type options struct {
	config  string
	png     string
	watch   bool
	verbose bool
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "machine.yaml", "machine description to simulate")
	flag.StringVar(&opts.png, "png", "", "render the physical memory map to this PNG file")
	flag.BoolVar(&opts.watch, "watch", false, "re-run the simulation whenever the description changes")
	flag.BoolVar(&opts.verbose, "v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("memsim", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if err := simulate(opts); err != nil {
		if !opts.watch {
			return err
		}
		slog.Error("simulation failed", "err", err)
	}

	if !opts.watch {
		return nil
	}

	return watch(ctx, opts.config, func() {
		if err := simulate(opts); err != nil {
			slog.Error("simulation failed", "err", err)
		}
	})
}

// simulate loads the description, runs the machine and optionally renders
// its memory map.
func simulate(opts options) error {
	log := slog.With("src", "memsim", "config", opts.config)

	desc, err := machine.LoadDescription(opts.config)
	if err != nil {
		return err
	}

	start := time.Now()
	m, err := machine.Run(desc, os.Stdout)
	if err != nil {
		return err
	}
	defer m.Close()

	drawn, free := m.Allocator().Stats()
	log.Info("simulation complete",
		"mappings", len(desc.Mappings),
		"probes", len(desc.Probes),
		"frames_drawn", drawn,
		"frames_free", free,
		"took", time.Since(start),
	)

	if opts.png != "" {
		if err = machine.Render(opts.png, m); err != nil {
			return err
		}
		log.Info("rendered memory map", "png", opts.png)
	}

	if err = m.Close(); err != nil {
		return fmt.Errorf("release machine: %w", err)
	}
	return nil
}
