package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go/dirhook/api"
	"go/dirhook/cmd"
	"go/dirhook/config"
	"go/dirhook/internals/dispatch"
	"go/dirhook/internals/instance"
	"go/dirhook/internals/watcher"
	"go/dirhook/logger"
)

func main() {
	if err := cmd.Execute(run); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	logr, err := logger.New(cfg.Verbose, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logr.Sync()

	var lock *instance.Lock
	if cfg.LockPath != "" {
		lock, err = instance.Acquire(cfg.LockPath)
		if err != nil {
			logr.Error("Cannot start", zap.Error(err))
			return err
		}
	}

	w, err := watcher.Open(cfg.Dir)
	if err != nil {
		logr.Error("Cannot watch directory", zap.String("dir", cfg.Dir), zap.Error(err))
		return multierr.Append(err, lock.Release())
	}
	defer func() {
		if err := multierr.Combine(w.Close(), lock.Release()); err != nil {
			logr.Warn("Cleanup failed", zap.Error(err))
		}
	}()

	client := api.New(cfg.WorkerURL, api.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	d := dispatch.New(logr, client, dispatch.Options{MaxInFlight: cfg.MaxInFlight})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logr.Info("Watching directory",
		zap.String("dir", w.Dir()),
		zap.String("worker_url", cfg.WorkerURL),
		zap.Int("max_in_flight", cfg.MaxInFlight),
	)

	if err := d.Run(ctx, w); err != nil {
		return err
	}

	// A signal cuts in-flight notifications off; a watch that ended on its
	// own lets them finish.
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	stats := d.Stats()
	logr.Info("Stopped",
		zap.Uint64("received", stats.Received),
		zap.Uint64("overflow", stats.Overflow),
		zap.Uint64("filtered", stats.Filtered),
		zap.Uint64("dispatched", stats.Dispatched),
		zap.Uint64("succeeded", stats.Succeeded),
		zap.Uint64("failed", stats.Failed),
	)
	return nil
}
