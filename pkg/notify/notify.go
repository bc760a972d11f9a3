// Package notify delivers order lifecycle notifications to engineers and
// reviewers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/sqlcron/sqlcron/pkg/models"
)

// Notification is one message about an order's lifecycle, addressed to the
// submitting engineer plus the order's receiver and CC lists.
type Notification struct {
	OrderID      string             `json:"order_id"`
	OrderName    string             `json:"order_name"`
	Status       models.OrderStatus `json:"status"`
	Message      string             `json:"message"`
	ArtifactPath string             `json:"artifact_path,omitempty"`
	Recipients   []string           `json:"recipients"`
	CCList       []string           `json:"cc_list,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Dispatcher delivers notifications. Delivery failures are logged by the
// caller and never change order state.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// SlogDispatcher logs notifications instead of delivering them. Used in
// development and as a fallback when no queue is configured.
type SlogDispatcher struct {
	logger *slog.Logger
}

func NewSlogDispatcher(logger *slog.Logger) *SlogDispatcher {
	return &SlogDispatcher{logger: logger.With("module", "notify")}
}

func (d *SlogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	d.logger.InfoContext(ctx, "Order notification",
		"order_id", n.OrderID,
		"status", n.Status,
		"message", n.Message,
		"recipients", n.Recipients)

	return nil
}

// RedisDispatcher pushes notifications onto a Redis list consumed by the
// messaging gateway.
type RedisDispatcher struct {
	client redis.UniversalClient
	queue  string
	logger *slog.Logger
}

// NewRedisDispatcher connects to Redis and verifies the connection.
func NewRedisDispatcher(ctx context.Context, logger *slog.Logger, redisURL, queue string) (*RedisDispatcher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisDispatcher{
		client: client,
		queue:  queue,
		logger: logger.With("module", "notify", "queue", queue),
	}, nil
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := d.client.LPush(ctx, d.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}

	return nil
}

// Close releases the Redis connection.
func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}
