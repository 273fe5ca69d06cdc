// Command filecache drives a file-backed cache from the shell. Entries are
// addressed by name; each name maps to a stable identity so that separate
// invocations see the same entry.
//
//	filecache --dir ./data put greeting hello
//	filecache --dir ./data get greeting
//	filecache --dir ./data serve --addr :7070
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/tailored-agentic-units/filecache/cache"
	"github.com/tailored-agentic-units/filecache/observability"
)

const defaultDir = ".filecache"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stdout, os.Stderr, os.Args[1:]))
}

type globalFlags struct {
	dir       string
	config    string
	maxSize   int
	maxSet    bool
	codecName string
	events    string
	verbose   bool
	remaining []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var g globalFlags

	fs := flag.NewFlagSet("filecache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)

	fs.StringVar(&g.dir, "dir", "", "Store directory (overrides config)")
	fs.StringVar(&g.config, "config", "", "Path to a JSON or JSONC config file")
	fs.IntVar(&g.maxSize, "max", 0, "In-memory capacity; 0 writes through (overrides config)")
	fs.StringVar(&g.codecName, "codec", "string", "Value codec: string or json")
	fs.StringVar(&g.events, "events", "slog", "Event observer: slog or noop")
	fs.BoolVar(&g.verbose, "verbose", false, "Enable verbose logging to stderr")

	if err := fs.Parse(args); err != nil {
		return g, err
	}
	g.maxSet = fs.Changed("max")
	g.remaining = fs.Args()
	return g, nil
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) int {
	g, err := parseGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		printUsage(stderr)
		return 2
	}
	if len(g.remaining) == 0 || g.remaining[0] == "help" || g.remaining[0] == "-h" || g.remaining[0] == "--help" {
		printUsage(stdout)
		return 0
	}

	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
	observer, err := observability.GetObserver(g.events)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	e := &env{
		stdout:   stdout,
		stderr:   stderr,
		cfg:      cfg,
		logger:   logger,
		observer: observer,
	}

	cmd, rest := g.remaining[0], g.remaining[1:]
	switch g.codecName {
	case "string":
		err = dispatch(ctx, e, stringFormat(), cmd, rest)
	case "json":
		err = dispatch(ctx, e, jsonFormat(), cmd, rest)
	default:
		err = fmt.Errorf("unknown codec: %s", g.codecName)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotFound):
		fmt.Fprintln(stderr, err)
		return 1
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, "error:", err)
		printUsage(stderr)
		return 2
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

func loadConfig(g globalFlags) (*cache.Config, error) {
	var cfg *cache.Config
	if g.config != "" {
		loaded, err := cache.LoadConfig(g.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := cache.DefaultConfig()
		cfg = &def
	}

	if g.dir != "" {
		cfg.Store.Dest = g.dir
	}
	if cfg.Store.Dest == "" {
		cfg.Store.Dest = defaultDir
	}
	if g.maxSet {
		cfg.MaxSize = g.maxSize
	}
	return cfg, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: filecache [--dir D] [--config F] [--max N] [--codec string|json] [--events slog|noop] [--verbose] <command>

Commands:
  put NAME VALUE     Store VALUE under NAME
  get NAME           Print the value stored under NAME
  rm NAME            Delete NAME from memory and disk
  ls [--limit N]     List stored entries, most recently modified first
  meta NAME          Print the metadata record for NAME
  load               Load the most recent entries and list what became resident
  reset              Wipe the store directory
  serve [--addr A]   Serve the read-only inspect API over HTTP
  bench [--n N]      Measure set and get throughput
`)
}
