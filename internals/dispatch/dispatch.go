package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"go/dirhook/api"
	"go/dirhook/events"
)

const DefaultMaxInFlight = 64

// Names with these suffixes belong to files a worker is already handling or
// has finished with.
var reservedSuffixes = []string{".processing", ".done"}

// Stream is a source of file events, such as *watcher.Watcher.
type Stream interface {
	Events(ctx context.Context) iter.Seq[events.FileEvent]
	Err() error
}

// Notifier delivers one notification per qualifying file.
type Notifier interface {
	Notify(ctx context.Context, name string) (api.Ack, error)
	TargetURL(name string) string
}

type Options struct {
	MaxInFlight int // Concurrent notifications, DefaultMaxInFlight when zero
}

// Stats counts what the dispatcher has seen since it was created.
type Stats struct {
	Received   uint64
	Overflow   uint64
	Filtered   uint64
	Dispatched uint64
	Succeeded  uint64
	Failed     uint64
}

// Dispatcher turns file events into fire-and-forget notifications.
type Dispatcher struct {
	logger   *zap.Logger
	notifier Notifier
	sem      *semaphore.Weighted
	wg       sync.WaitGroup

	received   atomic.Uint64
	overflow   atomic.Uint64
	filtered   atomic.Uint64
	dispatched atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
}

func New(logger *zap.Logger, notifier Notifier, opts Options) *Dispatcher {
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{
		logger:   logger,
		notifier: notifier,
		sem:      semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Qualifies reports whether a created file should trigger a notification.
func Qualifies(name string) bool {
	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}

// Run consumes stream until it ends. It returns nil when the watch became
// invalid or ctx was cancelled. Any other failure, including one bad event,
// stops the loop and is returned. Notifications are not awaited; see Wait.
func (d *Dispatcher) Run(ctx context.Context, stream Stream) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch loop panic: %v", r)
			d.logger.Error("Watch loop aborted", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	for ev := range stream.Events(ctx) {
		if err := d.handle(ctx, ev); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				break
			}
			d.logger.Error("Watch loop aborted", zap.Error(err))
			return err
		}
	}

	if err := stream.Err(); err != nil {
		d.logger.Error("Watch loop aborted", zap.Error(err))
		return err
	}
	if ctx.Err() != nil {
		d.logger.Info("Watch loop cancelled")
		return nil
	}
	d.logger.Info("Watch is no longer valid, stopping")
	return nil
}

// Wait blocks until every notification started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:   d.received.Load(),
		Overflow:   d.overflow.Load(),
		Filtered:   d.filtered.Load(),
		Dispatched: d.dispatched.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev events.FileEvent) error {
	d.received.Add(1)

	switch ev.Kind {
	case events.Overflow:
		// Lost events are not recovered.
		d.overflow.Add(1)
		d.logger.Debug("Event queue overflowed, some events were lost")
		return nil
	case events.Created:
	default:
		return fmt.Errorf("unexpected event kind %q", ev.Kind)
	}

	if ev.Name == "" {
		return errors.New("created event without a file name")
	}
	if !Qualifies(ev.Name) {
		d.filtered.Add(1)
		d.logger.Debug("Skipping reserved file", zap.String("file", ev.Name))
		return nil
	}
	return d.dispatch(ctx, ev.Name)
}

func (d *Dispatcher) dispatch(ctx context.Context, name string) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	id := uuid.NewString()
	d.dispatched.Add(1)
	d.logger.Info("Notifying worker",
		zap.String("id", id),
		zap.String("file", name),
		zap.String("url", d.notifier.TargetURL(name)),
	)

	d.wg.Add(1)
	go d.send(ctx, id, name)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, id, name string) {
	defer d.wg.Done()
	defer d.sem.Release(1)

	logr := d.logger.With(zap.String("id", id), zap.String("file", name))
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			logr.Error("Notification panicked", zap.Any("panic", r))
		}
	}()

	ack, err := d.notifier.Notify(ctx, name)
	if err != nil {
		d.failed.Add(1)
		logr.Warn("Failed to notify worker", zap.Error(err))
		return
	}

	d.succeeded.Add(1)
	fields := []zap.Field{zap.Int("status", ack.StatusCode)}
	if ack.HasValue {
		fields = append(fields, zap.Int64("ack", ack.Value))
	}
	logr.Debug("Worker notified", fields...)
}
