package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tomvdbrandt/canopy/pkg/analysis"
	"github.com/tomvdbrandt/canopy/pkg/config"
	"github.com/tomvdbrandt/canopy/pkg/debug"
	"github.com/tomvdbrandt/canopy/pkg/export"
	"github.com/tomvdbrandt/canopy/pkg/gateway"
	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/reconcile"
	"github.com/tomvdbrandt/canopy/pkg/render"
	"github.com/tomvdbrandt/canopy/pkg/statecache"
	"github.com/tomvdbrandt/canopy/pkg/ui"
	"github.com/tomvdbrandt/canopy/pkg/version"
	"github.com/tomvdbrandt/canopy/pkg/watcher"
)

func main() {
	serverURL := flag.String("server", "", "Node server base URL (overrides config)")
	configPath := flag.String("config", "", "Config file path (default: XDG config dir)")
	exportPath := flag.String("export", "", "Render the tree to a file and exit (svg or png)")
	exportFormat := flag.String("export-format", "", "Export format when it cannot be inferred from the path")
	analyzeFlag := flag.Bool("analyze", false, "Print graph structure metrics and exit")
	noCache := flag.Bool("no-cache", false, "Disable the local state cache")
	versionFlag := flag.Bool("version", false, "Show version")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help {
		fmt.Println("Usage: canopy [options]")
		fmt.Println("\nA TUI viewer for hierarchical node graphs.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("canopy %s\n", version.Version)
		os.Exit(0)
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}

	gw := gateway.NewHTTP(cfg.Server.URL, gateway.RetryPolicy{
		Attempts: cfg.Server.RetryAttempts,
		BaseWait: cfg.Server.RetryBaseWait(),
		MaxWait:  cfg.Server.RetryMaxWait(),
	})
	defer gw.Close()

	store := graph.NewStore()

	// Headless paths never touch the cache or the terminal.
	if *exportPath != "" || *analyzeFlag {
		if err := runHeadless(store, gw, *exportPath, *exportFormat, cfg.UI.DefaultZoom, *analyzeFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "canopy requires a terminal; use --export for headless output")
		os.Exit(1)
	}

	var cache *statecache.Cache
	if !*noCache {
		cache, err = statecache.Open(cfg.CachePath(), statecache.WithTTL(cfg.Cache.TTL()))
		if err != nil {
			// Non-fatal: run without persistence.
			debug.Log("opening state cache: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	r := reconcile.New(store, gw, cache)
	m := ui.New(r, cache, ui.DefaultTheme(lipgloss.DefaultRenderer()), cfg.UI)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithoutSignalHandler())

	// Notify the running program when the config file is edited.
	if w, err := watcher.New(cfgFile, watcher.WithOnChange(func() {
		p.Send(ui.NotifyConfigChanged())
	})); err == nil {
		if err := w.Start(); err == nil {
			defer w.Stop()
		}
	}

	if err := runTUIProgram(p); err != nil {
		fmt.Fprintf(os.Stderr, "Error running canopy: %v\n", err)
		os.Exit(1)
	}
}

// runHeadless fetches the tree once and serves the --export / --analyze
// paths without starting the TUI.
func runHeadless(store *graph.Store, gw gateway.Gateway, exportPath, exportFormat string, scale float64, analyze bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	nodes, err := gw.FetchTree(ctx)
	if err != nil {
		return fmt.Errorf("fetching tree: %w", err)
	}
	store.IngestFullTree(nodes)
	if !store.HasRoot() {
		return errors.New("server returned an empty graph")
	}

	if analyze {
		res := analysis.Analyze(store)
		fmt.Printf("nodes:   %d\n", res.NodeCount)
		fmt.Printf("edges:   %d\n", res.EdgeCount)
		fmt.Printf("density: %.4f\n", res.Density)
		if cross := res.CrossLinked(); len(cross) > 0 {
			fmt.Printf("cross-linked nodes: %d\n", len(cross))
			for _, id := range cross {
				fmt.Printf("  %s\n", id)
			}
		}
		if res.HasCycles() {
			fmt.Printf("cycles detected: %d\n", len(res.Cycles))
		}
		for _, mm := range analysis.CompareStats(res, store) {
			fmt.Printf("stale stats: %s (local in=%d out=%d, server in=%d out=%d)\n",
				mm.ID, mm.LocalIn, mm.LocalOut, mm.ServerStats.Inbound, mm.ServerStats.Outbound)
		}
	}

	if exportPath != "" {
		tree, err := render.Render(store, render.DefaultFilters())
		if err != nil {
			return fmt.Errorf("rendering tree: %w", err)
		}
		opts := export.SnapshotOptions{
			Path:   exportPath,
			Format: exportFormat,
			Title:  "canopy snapshot",
			Scale:  scale,
			Tree:   tree,
		}
		if err := export.SaveSnapshot(opts); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		fmt.Printf("wrote %s\n", exportPath)
	}
	return nil
}

func runTUIProgram(p *tea.Program) error {
	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
