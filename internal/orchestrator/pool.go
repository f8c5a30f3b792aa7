package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/brensch/zipfetch/internal/archive"
	"github.com/brensch/zipfetch/internal/fetch"
)

// Options configures Run. Nil collaborators fall back to the OS filesystem,
// an HTTP fetcher with default options and the zip opener.
type Options struct {
	Workers  int
	FS       afero.Fs
	Fetcher  fetch.Fetcher
	Opener   archive.Opener
	Logger   *slog.Logger
	Recorder Recorder
}

type job struct {
	seq    int
	source string
}

// Run processes every source on a pool of opts.Workers goroutines and
// blocks until each one has reported. destination must already be prepared.
//
// The returned Results always has len(sources) entries; task failures are
// carried by the outcomes. Run itself only fails on invalid options.
func Run(ctx context.Context, sources []string, destination string, opts Options) (Results, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidOptions, opts.Workers)
	}
	w := opts.worker()
	logger := w.logger()

	startTime := time.Now()
	logger.Info("Starting tasks.", slog.Int("sources", len(sources)), slog.Int("workers", opts.Workers), slog.String("destination", destination))

	jobs := make(chan job, len(sources))
	results := make(chan Outcome, opts.Workers)
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				logger.Debug("Worker picked up task.", slog.Int("worker", workerID), slog.String("source", j.source))
				out := w.run(ctx, j.source, destination, opts.Recorder)
				out.seq = j.seq
				results <- out
			}
		}(i + 1)
	}

	for i, source := range sources {
		jobs <- job{seq: i, source: source}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single receiver: only this goroutine touches collected.
	collected := make(Results, 0, len(sources))
	failures := 0
	for out := range results {
		if !out.OK() {
			failures++
		}
		collected = append(collected, out)
	}

	logger.Info("All tasks finished.",
		slog.Int("succeeded", len(collected)-failures),
		slog.Int("failed", failures),
		slog.Duration("duration", time.Since(startTime).Round(time.Millisecond)))
	return collected, nil
}

func (o Options) worker() *Worker {
	w := &Worker{FS: o.FS, Fetcher: o.Fetcher, Opener: o.Opener, Logger: o.Logger}
	if w.FS == nil {
		w.FS = afero.NewOsFs()
	}
	if w.Fetcher == nil {
		w.Fetcher = fetch.NewHTTPFetcher(fetch.DefaultOptions())
	}
	if w.Opener == nil {
		w.Opener = archive.Zip{}
	}
	return w
}
