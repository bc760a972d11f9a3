package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqlcron/sqlcron/pkg/artifact"
	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/notify"
	"github.com/sqlcron/sqlcron/pkg/persistence"
	"github.com/sqlcron/sqlcron/pkg/runner"
)

type WorkerManager struct {
	id        string
	logger    *slog.Logger
	runner    *runner.Runner
	finalizer *runner.Finalizer
	eventBus  eventbus.EventBus
}

func NewWorkerManager(
	id string,
	logger *slog.Logger,
	store persistence.Persistence,
	engines engine.Resolver,
	artifacts *artifact.Writer,
	dispatcher notify.Dispatcher,
	eventBus eventbus.EventBus,
) *WorkerManager {
	return &WorkerManager{
		id:        id,
		logger:    logger.With("module", "sqlcron-worker"),
		runner:    runner.NewRunner(logger, id, store, engines, eventBus),
		finalizer: runner.NewFinalizer(logger, store, artifacts, dispatcher),
		eventBus:  eventBus,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "worker_id", w.id)

	err := w.eventBus.Handle(events.OrderFiredEvent, w.runner.HandleFired)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.OrderExecutionCompletedEvent, w.finalizer.HandleCompleted)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}
