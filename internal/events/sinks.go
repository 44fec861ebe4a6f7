package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	AllCallsChannel = "calls:events"
	callChannel     = "call:%s:events"
)

func CallChannel(callID string) string {
	return fmt.Sprintf(callChannel, callID)
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "call_events")}
}

func (s *LogSink) HandleEvent(ctx context.Context, e Event) {
	level := slog.LevelInfo
	switch e.Type {
	case TypeCallError:
		level = slog.LevelError
	case TypeUserSpeech:
		level = slog.LevelDebug
	}
	s.logger.Log(ctx, level, "call event",
		"type", e.Type,
		"call_id", e.CallID,
		"session_id", e.SessionID,
		"payload", e.Payload,
	)
}

// RedisPublisher republishes events on redis pub/sub so dashboards and other
// instances can follow calls.
type RedisPublisher struct {
	redis  *redis.Client
	logger *slog.Logger
}

func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		redis:  client,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *RedisPublisher) HandleEvent(ctx context.Context, e Event) {
	if err := p.Publish(ctx, e); err != nil {
		p.logger.Error("failed to publish event", "type", e.Type, "call_id", e.CallID, "error", err)
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := p.redis.Pipeline()
	pipe.Publish(ctx, AllCallsChannel, data)
	pipe.Publish(ctx, CallChannel(e.CallID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Follow streams the events of one call (or all calls when callID is empty)
// published by any instance. The returned channel closes when ctx ends.
func (p *RedisPublisher) Follow(ctx context.Context, callID string) <-chan Event {
	channel := AllCallsChannel
	if callID != "" {
		channel = CallChannel(callID)
	}
	pubsub := p.redis.Subscribe(ctx, channel)
	out := make(chan Event, DefaultSubscriberBuffer)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					p.logger.Warn("invalid event payload", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- e:
				default:
					p.logger.Warn("follower too slow, event dropped", "call_id", e.CallID, "type", e.Type)
				}
			}
		}
	}()
	return out
}
