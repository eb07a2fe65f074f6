//go:build linux

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sysglance/sysglance/pkg/config"
	"github.com/sysglance/sysglance/pkg/report"
	"github.com/sysglance/sysglance/pkg/ui"
)

// version is stamped by the release build via -ldflags "-X main.version=...".
var version = "dev"

type runConfig struct {
	cfg   config.Config
	query string
	json  bool
}

func parseConfig() (runConfig, error) {
	configPath := flag.String("config", "", "path to a YAML config file")
	window := flag.Duration("window", config.DefaultWindow, "delta-sampling window (e.g. 100ms, 1s)")
	top := flag.Int("top", 0, "number of processes in the top-CPU table")
	timeout := flag.Duration("timeout", config.DefaultDomainTimeout, "per-domain collection timeout (0 disables)")
	jsonOut := flag.Bool("json", false, "emit the report as indented JSON")
	noColor := flag.Bool("no-color", false, "disable ANSI colors")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("sysglance " + version)
		os.Exit(0)
	}
	if flag.NArg() > 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return runConfig{}, err
	}

	// Flags set on the command line win over the file and environment
	// layers; untouched flags keep whatever Load produced.
	if flag.CommandLine.Changed("window") {
		cfg.Window = *window
	}
	if flag.CommandLine.Changed("top") {
		cfg.TopProcesses = *top
	}
	if flag.CommandLine.Changed("timeout") {
		cfg.DomainTimeout = *timeout
	}
	if *noColor {
		cfg.NoColor = true
	}
	if cfg.Window <= 0 {
		cfg.Window = config.DefaultWindow
	}
	if cfg.TopProcesses <= 0 {
		cfg.TopProcesses = 1
	}
	if cfg.DomainTimeout < 0 {
		cfg.DomainTimeout = 0
	}

	return runConfig{cfg: cfg, query: flag.Arg(0), json: *jsonOut}, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: sysglance [flags] [process-name]\n\n")
	fmt.Fprintf(os.Stderr, "Without a process name, prints a point-in-time utilization report for\n")
	fmt.Fprintf(os.Stderr, "the whole machine. With one, reports that process's CPU, GPU, RAM,\n")
	fmt.Fprintf(os.Stderr, "storage and network usage instead.\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	run, err := parseConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assembler, err := report.NewAssembler(run.cfg)
	if err != nil {
		log.Fatalf("initializing collectors: %v", err)
	}
	defer assembler.Close()

	color := !run.cfg.NoColor && term.IsTerminal(int(os.Stdout.Fd()))
	opts := ui.Options{Color: color, Window: run.cfg.Window}

	if run.query != "" {
		rep, err := assembler.Process(ctx, run.query)
		if err != nil {
			log.Fatalf("collecting process report: %v", err)
		}
		if run.json {
			err = ui.WriteJSON(os.Stdout, rep)
		} else {
			err = ui.RenderProcess(os.Stdout, rep, opts)
		}
		if err != nil {
			log.Fatalf("writing report: %v", err)
		}
		return
	}

	snap, err := assembler.System(ctx)
	if err != nil {
		log.Fatalf("collecting system report: %v", err)
	}
	if run.json {
		if err := ui.WriteJSON(os.Stdout, snap); err != nil {
			log.Fatalf("writing report: %v", err)
		}
		return
	}
	if color {
		fmt.Print(ui.Banner())
	}
	if err := ui.RenderSystem(os.Stdout, snap, opts); err != nil {
		log.Fatalf("writing report: %v", err)
	}
}
