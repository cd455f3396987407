package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// EventsChannel is the pub/sub channel carrying analysis events between processes.
const EventsChannel = "analysis-events"

// RedisPublisher publishes analysis events to Redis so that the API servers
// can forward them to their websocket clients.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

var _ domain.EventPublisher = (*RedisPublisher)(nil)

// NewRedisPublisher publishes on EventsChannel.
func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: EventsChannel}
}

// PublishAnalysisEvent implements domain.EventPublisher.
func (p *RedisPublisher) PublishAnalysisEvent(ctx context.Context, ev domain.AnalysisEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=realtime.redis.publish: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("op=realtime.redis.publish: %w", err)
	}
	return nil
}

// Forward subscribes to EventsChannel and hands every event to sink until ctx
// is done. It returns once the subscription is confirmed or failed via ready.
func Forward(ctx context.Context, rdb redis.UniversalClient, sink domain.EventPublisher, ready chan<- error) error {
	ps := rdb.Subscribe(ctx, EventsChannel)
	defer func() { _ = ps.Close() }()

	if _, err := ps.Receive(ctx); err != nil {
		err = fmt.Errorf("op=realtime.redis.forward: %w", err)
		if ready != nil {
			ready <- err
		}
		return err
	}
	if ready != nil {
		ready <- nil
	}
	slog.Info("forwarding analysis events", slog.String("channel", EventsChannel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.AnalysisEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("dropping malformed analysis event", slog.Any("error", err))
				continue
			}
			if err := sink.PublishAnalysisEvent(ctx, ev); err != nil {
				slog.Warn("forwarding analysis event failed", slog.Any("error", err))
			}
		}
	}
}
