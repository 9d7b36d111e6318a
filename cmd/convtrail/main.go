package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/convtrail/convtrail/internal/config"
	"github.com/convtrail/convtrail/internal/fetch"
	"github.com/convtrail/convtrail/internal/logging"
	"github.com/convtrail/convtrail/internal/output"
	"github.com/convtrail/convtrail/internal/output/stdout"
	"github.com/convtrail/convtrail/pkg/convtrail"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ndjson := cfg.Output == string(stdout.NDJSON)
	logging.Init(ndjson, logging.ParseLevel(cfg.LogLevel))

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down...\n", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		var ff *fetch.FetchFailedError
		if errors.As(err, &ff) {
			log.Fatalf("log store unreachable: %v", ff)
		}
		log.Fatalf("%v", err)
	}
}

// run keeps the output flushed on every exit path; log.Fatalf skips
// deferred calls, so fatal reporting happens in main after the return.
func run(ctx context.Context, cfg *config.Config) error {
	out := buildOutput(cfg)
	defer out.Close()

	opts := []convtrail.Option{
		convtrail.WithRegion(cfg.Region),
		convtrail.WithLogGroup(cfg.LogGroup),
		convtrail.WithLimit(cfg.Limit),
		convtrail.WithMaxPages(cfg.MaxPages),
		convtrail.WithWindow(cfg.Window),
		convtrail.WithFetchOptions(fetch.WithPageRate(cfg.PageRPS)),
	}
	if cfg.FilterPattern != "" {
		opts = append(opts, convtrail.WithFilterPattern(cfg.FilterPattern))
	}
	if !cfg.LatestStreamOnly {
		opts = append(opts, convtrail.WithAllStreams())
	}

	client, err := convtrail.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	s := client.FetchAndNormalize(ctx)
	for rec, err := range s.Records() {
		if err != nil {
			return err
		}
		if werr := out.Write(ctx, rec); werr != nil {
			return fmt.Errorf("output: %w", werr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	output.WriteSummary(os.Stderr, s.Warnings())
	return nil
}

func buildOutput(cfg *config.Config) output.Output {
	var opts []stdout.Option
	if cfg.Pretty {
		opts = append(opts, stdout.WithPretty())
	}
	if cfg.IncludeRaw {
		opts = append(opts, stdout.WithRaw())
	}
	return stdout.New(stdout.Format(cfg.Output), opts...)
}
