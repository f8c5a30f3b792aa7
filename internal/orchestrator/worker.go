package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/brensch/zipfetch/internal/archive"
	"github.com/brensch/zipfetch/internal/fetch"
)

// Worker downloads and extracts a single source. It holds no per-task
// state and is shared by every goroutine of the pool.
type Worker struct {
	FS      afero.Fs
	Fetcher fetch.Fetcher
	Opener  archive.Opener
	Logger  *slog.Logger
}

// ParseSource validates source and returns the parsed URI together with
// the file name taken from its final path segment.
func ParseSource(source string) (*url.URL, string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, "", fmt.Errorf("%w: URL %s is not valid: %w", ErrInvalidSource, source, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, "", fmt.Errorf("%w: URL %s is not valid", ErrInvalidSource, source)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == ".." {
		return nil, "", fmt.Errorf("%w: URL %s has no file name", ErrInvalidSource, source)
	}
	return u, name, nil
}

// Process runs the steps for one source strictly in order: validate, fetch,
// write the download, open it as an archive, remove the download and extract
// into destination. It returns the archive's member names.
func (w *Worker) Process(ctx context.Context, source, destination string) ([]string, error) {
	l := w.logger().With(slog.String("source", source))

	u, filename, err := ParseSource(source)
	if err != nil {
		l.Warn("Rejected source.", "error", err)
		return nil, err
	}
	downloadPath := filepath.Join(destination, filename)
	l = l.With(slog.String("download_path", downloadPath))

	startTime := time.Now()
	l.Debug("Starting download.")
	data, err := w.Fetcher.Fetch(ctx, u.String())
	if err != nil {
		if !errors.Is(err, fetch.ErrTransport) {
			err = fmt.Errorf("%w: %w", fetch.ErrTransport, err)
		}
		l.Error("Download failed.", "error", err, slog.Duration("duration", time.Since(startTime).Round(time.Millisecond)))
		return nil, err
	}
	l.Debug("Download complete.", slog.Int("bytes", len(data)), slog.Duration("duration", time.Since(startTime).Round(time.Millisecond)))

	if err := afero.WriteFile(w.FS, downloadPath, data, 0o644); err != nil {
		w.discard(l, downloadPath)
		return nil, fmt.Errorf("%w: failed to save %s: %w", ErrFilesystem, downloadPath, err)
	}

	ar, err := w.Opener.Open(w.FS, downloadPath)
	if err != nil {
		w.discard(l, downloadPath)
		if errors.Is(err, archive.ErrFormat) {
			l.Warn("Downloaded file is not an archive.", "error", err)
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	defer func() {
		if closeErr := ar.Close(); closeErr != nil {
			l.Warn("Failed to close archive.", "error", closeErr)
		}
	}()

	// The download goes before extraction: a member may share its name.
	if err := w.FS.Remove(downloadPath); err != nil {
		return nil, fmt.Errorf("%w: remove %s: %w", ErrFilesystem, downloadPath, err)
	}

	names := ar.Names()
	if err := ar.ExtractAll(w.FS, destination); err != nil {
		if errors.Is(err, archive.ErrFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}

	l.Info("Archive extracted.", slog.Int("members", len(names)), slog.Duration("duration", time.Since(startTime).Round(time.Millisecond)))
	return names, nil
}

// discard removes a download that will not be extracted. It is best effort:
// the task already failed for another reason.
func (w *Worker) discard(l *slog.Logger, downloadPath string) {
	if err := w.FS.Remove(downloadPath); err != nil {
		exists, _ := afero.Exists(w.FS, downloadPath)
		if exists {
			l.Warn("Failed to remove download.", "error", err)
		}
	}
}

// run turns Process into an Outcome, recovering panics so every task reports.
// Recorder panics are recovered too.
func (w *Worker) run(ctx context.Context, source, destination string, rec Recorder) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.logger().Error("Task panicked.", slog.String("source", source), slog.Any("panic", r))
			out = failed(source, fmt.Errorf("%w: %v", ErrTaskPanic, r))
		}
		if rec != nil {
			w.notify(source, func() { rec.TaskFinished(ctx, out, time.Since(start)) })
		}
	}()
	if rec != nil {
		rec.TaskStarted(ctx, source)
	}

	members, err := w.Process(ctx, source, destination)
	if err != nil {
		return failed(source, err)
	}
	return succeeded(source, members)
}

// notify calls fn, logging instead of propagating a panic.
func (w *Worker) notify(source string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger().Error("Recorder panicked.", slog.String("source", source), slog.Any("panic", r))
		}
	}()
	fn()
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.Logger
}
