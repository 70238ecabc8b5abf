// Command cdbms runs the query kernel as a line-oriented server: each
// line of standard input is a whitespace-separated command stream, and
// each reply is a status code, a byte count, and (when present) a body.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/j1sk1ss/cdbms/internal/blockfs"
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/config"
	"github.com/j1sk1ss/cdbms/internal/container"
	"github.com/j1sk1ss/cdbms/internal/kernel"
	"github.com/j1sk1ss/cdbms/internal/lock"
	"github.com/j1sk1ss/cdbms/internal/metrics"
	"github.com/j1sk1ss/cdbms/pkg/logx"
	"github.com/j1sk1ss/cdbms/pkg/retry"
)

// metricsRecorder adapts the Prometheus collector to the narrow
// cache.Recorder and lock.Recorder interfaces those lower-level packages
// depend on, keeping them free of any import on internal/metrics.
type metricsRecorder struct {
	collector *metrics.Collector
}

func (m metricsRecorder) RecordCacheHit(class cache.Class) {
	m.collector.RecordCacheHit(metrics.CacheClass(class))
}

func (m metricsRecorder) RecordCacheMiss(class cache.Class) {
	m.collector.RecordCacheMiss(metrics.CacheClass(class))
}

func (m metricsRecorder) RecordLockWait(class, mode string) {
	m.collector.RecordLockWait(metrics.CacheClass(class), mode)
}

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	basePath := flag.String("base-path", "", "override storage.base_path")
	flag.Parse()

	if err := run(context.Background(), *configPath, *basePath, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, basePathOverride string, in io.Reader, out io.Writer) error {
	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return fmt.Errorf("load config overrides: %w", err)
	}
	if basePathOverride != "" {
		cfg.Storage.BasePath = basePathOverride
	}

	level, err := logx.ParseLevel(cfg.Global.LogLevel)
	if err != nil {
		level = logx.INFO
	}
	logOutput := io.Writer(os.Stderr)
	if cfg.Global.LogFile != "" {
		f, ferr := os.OpenFile(cfg.Global.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if ferr != nil {
			return fmt.Errorf("open log file: %w", ferr)
		}
		defer f.Close()
		logOutput = f
	}
	logger := logx.NewLogger(level, logOutput)

	var collector *metrics.Collector
	if cfg.Monitoring.Metrics.Enabled {
		collector, err = metrics.NewCollector(&metrics.Config{
			Enabled:        true,
			Port:           cfg.Global.MetricsPort,
			Path:           "/metrics",
			Namespace:      "cdbms",
			UpdateInterval: 30 * time.Second,
			Labels:         map[string]string{},
		})
		if err != nil {
			return fmt.Errorf("start metrics collector: %w", err)
		}
		if err := collector.Start(ctx); err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		defer collector.Stop(ctx)
	}

	retryer := retry.New(retry.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	})

	containerCache := cache.New(cache.Config{
		DatabaseMaxEntries:  cfg.Cache.Database.MaxEntries,
		TableMaxEntries:     cfg.Cache.Table.MaxEntries,
		DirectoryMaxEntries: cfg.Cache.Directory.MaxEntries,
		PageMaxEntries:      cfg.Cache.Page.MaxEntries,
	})

	var lockRecorder lock.Recorder
	if collector != nil {
		rec := metricsRecorder{collector: collector}
		containerCache.SetRecorder(rec)
		lockRecorder = rec
	}

	deps := &container.Deps{
		FS:           blockfs.New(cfg.Storage.BasePath, retryer, logger, containerCache),
		Cache:        containerCache,
		Logger:       logger,
		LockRecorder: lockRecorder,
	}
	kctx := kernel.NewContext(deps)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(sigCtx, kctx, collector, in, out)
}

// serve reads one command stream per line from in until sigCtx is
// cancelled or in reaches EOF, printing each answer's code, size, and
// body (when present) to out.
func serve(ctx context.Context, kctx *kernel.Context, collector *metrics.Collector, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			args := strings.Fields(line)
			if len(args) == 0 {
				continue
			}

			start := time.Now()
			answer, cerr := kernel.ProcessCommand(kctx, 0, args)
			if collector != nil {
				collector.RecordCommand(args[0], time.Since(start), cerr == nil)
				if cerr != nil {
					collector.RecordError(args[0], cerr)
				}
			}

			fmt.Fprintf(out, "%d %d", answer.Code, answer.Size)
			if answer.Size > 0 && len(answer.Body) > 0 {
				fmt.Fprintf(out, " %s", string(answer.Body))
			}
			fmt.Fprintln(out)
		}
	}
}
