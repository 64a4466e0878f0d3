// Command mdwatch renders markdown and re-renders it while you edit.
//
// With -out it generates an HTML tree from the source and, optionally,
// serves it with live reload (-listen). Without -out it renders the source
// as ANSI to the terminal. In both modes it then watches the source by
// timestamp polling and accepts refresh/exit commands on stdin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/treykane/mdwatch/internal/config"
	"github.com/treykane/mdwatch/internal/logging"
	"github.com/treykane/mdwatch/internal/preview"
	"github.com/treykane/mdwatch/internal/render"
	"github.com/treykane/mdwatch/internal/watch"
)

var log = logging.New("main")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		source   = flag.String("source", "", "markdown file or directory to watch (default: configured source)")
		outDir   = flag.String("out", "", "directory for rendered HTML; empty renders to the terminal")
		interval = flag.Duration("interval", 0, "poll interval, e.g. 500ms (default: configured interval)")
		listen   = flag.String("listen", "", `preview server address, e.g. "127.0.0.1:8080" (requires -out)`)
		theme    = flag.String("theme", "", "glamour style for terminal output")
		once     = flag.Bool("once", false, "render once and exit without watching")
		save     = flag.Bool("save", false, "persist the effective settings to the config file")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrNotConfigured) {
		return err
	}

	if flag.NArg() > 0 && *source == "" {
		*source = flag.Arg(0)
	}
	if *source != "" {
		normalized, err := config.NormalizePath(*source)
		if err != nil {
			return fmt.Errorf("invalid source: %w", err)
		}
		cfg.Source = normalized
	}
	if *outDir != "" {
		normalized, err := config.NormalizePath(*outDir)
		if err != nil {
			return fmt.Errorf("invalid output dir: %w", err)
		}
		cfg.OutputDir = normalized
	}
	if *interval > 0 {
		cfg.WatchIntervalMillis = int(interval.Milliseconds())
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *theme != "" {
		cfg.Theme = *theme
	}

	if cfg.Source == "" {
		return errors.New("no source configured: pass a path, -source, or save one with -save")
	}
	if cfg.Listen != "" && cfg.OutputDir == "" {
		return errors.New("-listen requires -out: the preview server serves the rendered HTML")
	}

	if *save {
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderFn, srv := buildRenderer(cfg)

	if *once {
		return renderFn(ctx)
	}

	onFirstRender := func() {
		log.Info("initial render complete", "source", cfg.Source)
	}
	if srv != nil {
		addr, err := srv.Start(ctx)
		if err != nil {
			return fmt.Errorf("start preview server: %w", err)
		}
		url := "http://" + addr + "/"
		onFirstRender = func() {
			log.Info("preview available", "url", url)
		}
	}

	session := &watch.Session{
		Target:        cfg.Source,
		Interval:      cfg.WatchInterval(),
		Grace:         cfg.ShutdownGrace(),
		Render:        renderFn,
		OnFirstRender: onFirstRender,
	}
	return session.Run(ctx)
}

// buildRenderer picks the renderer for the configured mode and, when a
// preview server is wanted, wires its reload broadcast into every
// successful render.
func buildRenderer(cfg config.Config) (func(context.Context) error, *preview.Server) {
	if cfg.OutputDir == "" {
		term := render.NewTerminal(cfg.Source, cfg.Theme, os.Stdout)
		return term.Render, nil
	}

	if isWithin(cfg.OutputDir, cfg.Source) {
		log.Warn("output dir is inside the watched source; every render will be observed as a change",
			"source", cfg.Source, "out", cfg.OutputDir)
	}

	site := render.NewSite(cfg.Source, cfg.OutputDir, cfg.Listen != "")
	if cfg.Listen == "" {
		return site.Render, nil
	}

	srv := preview.New(cfg.Listen, cfg.OutputDir)
	return func(ctx context.Context) error {
		if err := site.Render(ctx); err != nil {
			return err
		}
		srv.Broadcast()
		return nil
	}, srv
}

// isWithin reports whether path is inside (or equal to) root.
func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
