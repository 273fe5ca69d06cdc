package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/filecache/cache"
	"github.com/tailored-agentic-units/filecache/codec"
	"github.com/tailored-agentic-units/filecache/identity"
	"github.com/tailored-agentic-units/filecache/inspect"
	"github.com/tailored-agentic-units/filecache/observability"
)

const (
	defaultAddr       = ":7070"
	defaultBenchCount = 1000
	shutdownTimeout   = 5 * time.Second
)

var (
	errNotFound = errors.New("not found")
	errUsage    = errors.New("usage")
)

type env struct {
	stdout   io.Writer
	stderr   io.Writer
	cfg      *cache.Config
	logger   *slog.Logger
	observer observability.Observer
}

// format binds a codec to its command-line text form.
type format[T any] struct {
	codec codec.Codec[T]
	parse func(string) (T, error)
	show  func(T) (string, error)
}

func stringFormat() format[string] {
	return format[string]{
		codec: codec.String(),
		parse: func(s string) (string, error) { return s, nil },
		show:  func(v string) (string, error) { return v, nil },
	}
}

func jsonFormat() format[any] {
	return format[any]{
		codec: codec.JSON(),
		parse: func(s string) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, fmt.Errorf("value is not JSON: %w", err)
			}
			return v, nil
		},
		show: func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
}

func dispatch[T any](ctx context.Context, e *env, f format[T], cmd string, args []string) error {
	switch cmd {
	case "put":
		return cmdPut(ctx, e, f, args)
	case "get":
		return cmdGet(ctx, e, f, args)
	case "rm":
		return cmdRm(ctx, e, f, args)
	case "ls":
		return cmdLs(ctx, e, f, args)
	case "meta":
		return cmdMeta(ctx, e, f, args)
	case "load":
		return cmdLoad(ctx, e, f, args)
	case "reset":
		return cmdReset(ctx, e, f, args)
	case "serve":
		return cmdServe(ctx, e, f, args)
	case "bench":
		return cmdBench(ctx, e, f, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func open[T any](ctx context.Context, e *env, f format[T]) (*cache.Cache[T], error) {
	return cache.Start(ctx, e.cfg, f.codec, cache.WithObserver(e.observer))
}

func cmdPut[T any](ctx context.Context, e *env, f format[T], args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: put NAME VALUE", errUsage)
	}

	v, err := f.parse(args[1])
	if err != nil {
		return err
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}

	id, err := c.Set(ctx, identity.Named(args[0]), v)
	if err != nil {
		return err
	}
	if err := c.FlushToStore(ctx); err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, id.ID())
	return nil
}

func cmdGet[T any](ctx context.Context, e *env, f format[T], args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get NAME", errUsage)
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}

	v, ok, err := c.Get(ctx, identity.Named(args[0]), true)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", errNotFound, args[0])
	}

	text, err := f.show(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, text)
	return nil
}

func cmdRm[T any](ctx context.Context, e *env, f format[T], args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: rm NAME", errUsage)
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}

	deleted, err := c.Delete(ctx, identity.Named(args[0]), true)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", errNotFound, args[0])
	}

	fmt.Fprintln(e.stdout, "deleted", args[0])
	return nil
}

func cmdLs[T any](ctx context.Context, e *env, f format[T], args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 0, "Maximum entries to show; 0 for all")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}

	metas, err := c.Store().LoadMeta(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODIFIED")
	for _, m := range metas {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Identity().ID(), m.Identity().Name(), m.ModifiedAt().Format(time.RFC3339Nano))
	}
	return tw.Flush()
}

func cmdMeta[T any](ctx context.Context, e *env, f format[T], args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: meta NAME", errUsage)
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}

	m, ok, err := c.GetMeta(ctx, identity.Named(args[0]))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", errNotFound, args[0])
	}

	fmt.Fprintf(e.stdout, "id:          %s\n", m.Identity().ID())
	fmt.Fprintf(e.stdout, "name:        %s\n", m.Identity().Name())
	fmt.Fprintf(e.stdout, "created_at:  %s\n", m.CreatedAt().Format(time.RFC3339Nano))
	fmt.Fprintf(e.stdout, "modified_at: %s\n", m.ModifiedAt().Format(time.RFC3339Nano))
	return nil
}

func cmdLoad[T any](ctx context.Context, e *env, f format[T], args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: load", errUsage)
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}
	if err := c.LoadFromStore(ctx); err != nil {
		return err
	}

	for _, entry := range c.Entries() {
		text, err := f.show(entry.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s=%s\n", entry.Identity.Name(), text)
	}
	return nil
}

func cmdReset[T any](ctx context.Context, e *env, f format[T], args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: reset", errUsage)
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}
	return c.Store().Reset(ctx)
}

func cmdServe[T any](ctx context.Context, e *env, f format[T], args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", defaultAddr, "Listen address")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	c, err := open(ctx, e, f)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	path, handler := inspect.NewHandler(c.Store())
	mux.Handle(path, handler)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("serving inspect API", "addr", *addr, "dest", c.Store().Dest())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	e.logger.Info("inspect API stopped")
	return nil
}

// cmdBench runs against a scratch store so the configured one is untouched.
func cmdBench[T any](ctx context.Context, e *env, f format[T], args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	n := fs.Int("n", defaultBenchCount, "Number of entries")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *n <= 0 {
		return fmt.Errorf("%w: --n must be positive", errUsage)
	}

	dir, err := os.MkdirTemp("", "filecache-bench-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	cfg := *e.cfg
	cfg.Store.Dest = dir
	cfg.Store.Clean = true

	rec := &observability.Recorder{}
	c, err := cache.Start(ctx, &cfg, f.codec, cache.WithObserver(observability.NewMultiObserver(e.observer, rec)))
	if err != nil {
		return err
	}

	ids := make([]*identity.Identity, 0, *n)
	start := time.Now()
	for i := range *n {
		v, err := f.parse(fmt.Sprint(i))
		if err != nil {
			return err
		}
		id, err := c.SetName(ctx, fmt.Sprintf("bench-%d", i), v)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	report(e.stdout, "set", *n, time.Since(start))

	start = time.Now()
	for _, id := range ids {
		if _, ok, err := c.Get(ctx, id, true); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("bench: lost %s", id)
		}
	}
	report(e.stdout, "get", *n, time.Since(start))

	fmt.Fprintf(e.stdout, "codec=%s max_size=%d resident=%d evictions=%d\n",
		f.codec.Name(), c.MaxSize(), c.Len(), rec.Count(observability.EventCacheEvict))
	return nil
}

func report(w io.Writer, op string, n int, d time.Duration) {
	rate := float64(n) / d.Seconds()
	fmt.Fprintf(w, "%s: %d ops in %s (%.0f ops/s)\n", op, n, d.Round(time.Microsecond), rate)
}
