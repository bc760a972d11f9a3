package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sqlcron/sqlcron/pkg/notify"
)

// NewDispatcher builds the notification dispatcher. An empty redisURL
// selects the log-only dispatcher.
func NewDispatcher(ctx context.Context, logger *slog.Logger, redisURL, queue string) notify.Dispatcher {
	if redisURL == "" {
		return notify.NewSlogDispatcher(logger)
	}

	dispatcher, err := notify.NewRedisDispatcher(ctx, logger, redisURL, queue)
	if err != nil {
		panic(fmt.Errorf("failed to create redis dispatcher: %w", err))
	}

	return dispatcher
}
