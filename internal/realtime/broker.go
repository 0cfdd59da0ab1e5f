package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisChannel = "ridehub:realtime"

// Publisher is what producers of realtime frames depend on.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// redisEnvelope is the message shape carried on the Redis channel.
type redisEnvelope struct {
	Topic  string          `json:"topic"`
	Frame  json.RawMessage `json:"frame"`
	SentAt time.Time       `json:"sent_at"`
}

// Broker is the application-facing pub/sub primitive. Without a Redis client
// it fans frames out to the local Hub directly. With one, every frame goes
// through a single Redis channel and each process replays it into its own Hub.
type Broker struct {
	hub     *Hub
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// NewBroker wires hub to an optional Redis client.
func NewBroker(hub *Hub, client *redis.Client, log *zap.Logger) *Broker {
	return &Broker{
		hub:     hub,
		client:  client,
		channel: defaultRedisChannel,
		log:     log,
	}
}

// Hub returns the local hub sessions attach to.
func (b *Broker) Hub() *Hub { return b.hub }

// Publish serializes v once and delivers it to topic.
func (b *Broker) Publish(ctx context.Context, topic string, v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame for %s: %w", topic, err)
	}

	if b.client == nil {
		b.hub.Publish(topic, frame)
		return nil
	}

	body, err := json.Marshal(redisEnvelope{Topic: topic, Frame: frame, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode redis envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish to redis channel %s: %w", b.channel, err)
	}
	return nil
}

// Run replays the Redis channel into the local hub until ctx is done. It
// returns immediately when no Redis client is configured.
func (b *Broker) Run(ctx context.Context) error {
	if b.client == nil {
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis channel %s: %w", b.channel, err)
	}
	b.log.Info("realtime redis relay subscribed", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env redisEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("dropping undecodable relay message", zap.Error(err))
				continue
			}
			if env.Topic == "" {
				continue
			}
			b.hub.Publish(env.Topic, env.Frame)
		}
	}
}
