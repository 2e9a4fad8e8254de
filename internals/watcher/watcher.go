package watcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"go/dirhook/events"
)

// Watcher reports files created directly inside one directory. It is not safe
// for concurrent use: a single consumer drives it through Next or Events.
type Watcher struct {
	dir string
	fs  *fsnotify.Watcher
	now func() time.Time

	pending []events.FileEvent
	rearm   bool  // a batch was taken and must be acknowledged before the next take
	removed bool  // the directory itself was removed or renamed
	fail    error // terminal, reported once pending is empty
	err     error // terminal error seen by Events, nil for a clean end
}

// Open starts watching dir. It fails with a *ConfigurationError when dir does
// not exist, is not a directory, or cannot be registered with the OS.
func Open(dir string) (*Watcher, error) {
	clean := filepath.Clean(dir)

	info, err := os.Stat(clean)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigurationError{Path: dir, Message: "directory does not exist", Err: err}
		}
		return nil, &ConfigurationError{Path: dir, Message: "cannot stat directory", Err: err}
	}
	if !info.IsDir() {
		return nil, &ConfigurationError{Path: dir, Message: "not a directory"}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &ConfigurationError{Path: dir, Message: "cannot create watcher", Err: err}
	}
	if err := fsw.Add(clean); err != nil {
		fsw.Close()
		return nil, &ConfigurationError{Path: dir, Message: "cannot watch directory", Err: err}
	}

	return &Watcher{
		dir: clean,
		fs:  fsw,
		now: time.Now,
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Next blocks until an event is available and returns it. Events are taken
// from the OS a batch at a time; once a batch is used up the watch is re-armed,
// and if that fails Next returns ErrWatchInvalid from then on.
func (w *Watcher) Next(ctx context.Context) (events.FileEvent, error) {
	for len(w.pending) == 0 {
		if w.fail != nil {
			return events.FileEvent{}, w.fail
		}
		if w.rearm {
			w.reset()
			continue
		}
		if err := w.take(ctx); err != nil {
			return events.FileEvent{}, err
		}
	}

	ev := w.pending[0]
	w.pending = w.pending[1:]
	return ev, nil
}

// Events returns the watch as a lazy sequence. The sequence ends when the
// watch becomes invalid, ctx is done, or an unexpected error occurs; only the
// last case is reported by Err.
func (w *Watcher) Events(ctx context.Context) iter.Seq[events.FileEvent] {
	return func(yield func(events.FileEvent) bool) {
		for {
			ev, err := w.Next(ctx)
			if err != nil {
				if !errors.Is(err, ErrWatchInvalid) && ctx.Err() == nil {
					w.err = err
				}
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Err returns the error that ended Events, if any.
func (w *Watcher) Err() error {
	return w.err
}

// Close releases the OS watch.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// take blocks for the first notification and then drains whatever else is
// already queued, so one call corresponds to one OS batch.
func (w *Watcher) take(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev, ok := <-w.fs.Events:
		if !ok {
			w.fail = ErrWatchInvalid
			return nil
		}
		w.accept(ev)
	case err, ok := <-w.fs.Errors:
		if !ok {
			w.fail = ErrWatchInvalid
			return nil
		}
		w.acceptErr(err)
	}
	w.rearm = true

	for w.fail == nil {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				w.fail = ErrWatchInvalid
				return nil
			}
			w.accept(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				w.fail = ErrWatchInvalid
				return nil
			}
			w.acceptErr(err)
		default:
			return nil
		}
	}
	return nil
}

func (w *Watcher) reset() {
	w.rearm = false
	if w.removed {
		w.fail = ErrWatchInvalid
		return
	}
	info, err := os.Stat(w.dir)
	if err != nil || !info.IsDir() {
		w.fail = ErrWatchInvalid
		return
	}
	if !slices.Contains(w.fs.WatchList(), w.dir) {
		w.fail = ErrWatchInvalid
	}
}

func (w *Watcher) accept(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	if name == w.dir {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.removed = true
		}
		return
	}
	if !ev.Has(fsnotify.Create) {
		return
	}

	if filepath.Dir(name) != w.dir {
		return
	}
	w.pending = append(w.pending, events.FileEvent{
		Kind:       events.Created,
		Name:       filepath.Base(name),
		ObservedAt: w.now(),
	})
}

func (w *Watcher) acceptErr(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.pending = append(w.pending, events.FileEvent{
			Kind:       events.Overflow,
			ObservedAt: w.now(),
		})
		return
	}
	w.fail = fmt.Errorf("watch %s: %w", w.dir, err)
}
