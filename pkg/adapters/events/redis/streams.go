// Package redis implements the event bus on Redis Streams with consumer
// groups, so events survive process restarts and can fan out to several
// taskmesh instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// maxStreamLen caps each event stream with approximate XADD trimming.
const maxStreamLen = 10000

// Bus implements ports.EventBus on Redis Streams.
type Bus struct {
	client   *redis.Client
	group    string
	consumer string
	logger   *zap.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewBus creates a Redis Streams event bus. All subscriptions share one
// consumer group name so multiple instances split the event load.
func NewBus(client *redis.Client, group, consumer string, logger *zap.Logger) *Bus {
	return &Bus{
		client:   client,
		group:    group,
		consumer: consumer,
		logger:   logger,
	}
}

var _ ports.EventBus = (*Bus)(nil)

func streamKey(topic string) string {
	return "taskmesh:events:" + topic
}

// Publish appends the event to the topic stream.
func (b *Bus) Publish(ctx context.Context, topic string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(topic),
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	b.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
	return nil
}

// Subscribe joins the consumer group for the topic and starts a reader
// goroutine that runs until ctx is cancelled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	key := streamKey(topic)

	err := b.client.XGroupCreateMkStream(ctx, key, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group for %s: %w", topic, err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	go b.readLoop(readCtx, key, handler)

	b.logger.Info("subscribed to event stream",
		zap.String("topic", topic),
		zap.String("group", b.group),
		zap.String("consumer", b.consumer))
	return nil
}

// Close stops all reader goroutines. The Redis client is owned by the
// caller and stays open.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	return nil
}

func (b *Bus) readLoop(ctx context.Context, key string, handler ports.EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.consumer,
			Streams:  []string{key, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error("stream read failed", zap.String("stream", key), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.handleMessage(ctx, key, msg, handler)
			}
		}
	}
}

func (b *Bus) handleMessage(ctx context.Context, key string, msg redis.XMessage, handler ports.EventHandler) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		b.logger.Error("malformed stream entry",
			zap.String("stream", key),
			zap.String("message_id", msg.ID))
		return
	}

	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		b.logger.Error("undecodable event",
			zap.String("stream", key),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}

	if err := handler(ctx, event); err != nil {
		// Leave the entry unacked so another consumer can pick it up.
		b.logger.Error("event handler failed",
			zap.String("stream", key),
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}

	if err := b.client.XAck(ctx, key, b.group, msg.ID).Err(); err != nil {
		b.logger.Error("ack failed",
			zap.String("stream", key),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}
