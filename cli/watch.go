package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/seeed-sh/seeed/runtime"
	"github.com/seeed-sh/seeed/runtime/console"
)

const watchDebounce = 300 * time.Millisecond

// watcher reports writes to one file. It watches the parent directory so an
// editor that replaces the file on save is still seen.
type watcher struct {
	w        *fsnotify.Watcher
	path     string
	debounce time.Duration
	warn     func(err error)
}

func newWatcher(path string, debounce time.Duration, warn func(err error)) (*watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher failed: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &watcher{w: fsWatcher, path: abs, debounce: debounce, warn: warn}, nil
}

func (w *watcher) close() {
	_ = w.w.Close()
}

// run calls notify once per burst of changes to the file until ctx is done.
func (w *watcher) run(ctx context.Context, notify func()) {
	var debouncer *time.Timer
	var debouncerC <-chan time.Time
	defer func() {
		if debouncer != nil {
			debouncer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			if err != nil && w.warn != nil {
				w.warn(err)
			}
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debouncer == nil {
				debouncer = time.NewTimer(w.debounce)
			} else {
				debouncer.Reset(w.debounce)
			}
			debouncerC = debouncer.C
		case <-debouncerC:
			debouncerC = nil
			notify()
		}
	}
}

// runWatch runs the script now and again after every change, each time as a
// complete, independent run, until ctx is cancelled.
func runWatch(ctx context.Context, cfg runtime.RunConfig, stdout, stderr io.Writer) error {
	path := cfg.ScriptPath
	status := console.New(stdout, stderr, useColor(cfg.NoColor, stderr))

	runOnce := func() {
		source, err := os.ReadFile(path)
		if err != nil {
			status.Failuref("cannot read %s: %v", path, err)
			return
		}
		code := runtime.Run(ctx, cfg, source, stdout, stderr)
		status.Statusf("run finished with exit code %d; watching %s", code, path)
	}

	w, err := newWatcher(path, watchDebounce, func(err error) {
		status.Failuref("watcher: %v", err)
	})
	if err != nil {
		return &CLIError{Message: "cannot watch " + path, Details: err.Error()}
	}
	defer w.close()

	runOnce()
	w.run(ctx, runOnce)
	return nil
}
