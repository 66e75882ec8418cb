package rbac

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	viewVersionKey = "rbac:permissions:version"
	// DefaultInvalidationChannel carries view refresh notifications.
	DefaultInvalidationChannel = "rbac.permissions.bump"
)

// Bus announces view refreshes to other processes.
type Bus interface {
	Publish(ctx context.Context) error
	Listen(ctx context.Context, onBump func(context.Context)) error
}

// RedisBus implements Bus with a version counter and pub/sub.
type RedisBus struct {
	client   *redis.Client
	channel  string
	instance string
	logger   *slog.Logger
}

// NewRedisBus builds a RedisBus on channel.
func NewRedisBus(client *redis.Client, channel string, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, channel: channel, instance: uuid.NewString(), logger: logger}
}

// Version returns the current refresh counter.
func (b *RedisBus) Version(ctx context.Context) (int64, error) {
	if b == nil || b.client == nil {
		return 0, nil
	}
	ver, err := b.client.Get(ctx, viewVersionKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return ver, err
}

// Publish bumps the version and notifies subscribers.
func (b *RedisBus) Publish(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	ver, err := b.client.Incr(ctx, viewVersionKey).Result()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, b.instance+":"+strconv.FormatInt(ver, 10)).Err()
}

// Listen calls onBump for every notification sent by another instance. It
// returns once the subscription is established.
func (b *RedisBus) Listen(ctx context.Context, onBump func(context.Context)) error {
	if b == nil || b.client == nil {
		return nil
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				origin, _, _ := strings.Cut(msg.Payload, ":")
				if origin == b.instance {
					continue
				}
				b.logger.Debug("rbac view bump received", slog.String("payload", msg.Payload))
				onBump(ctx)
			}
		}
	}()
	return nil
}

var _ Bus = (*RedisBus)(nil)
