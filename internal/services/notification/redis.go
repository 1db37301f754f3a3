package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"disputedesk/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var categories = []models.AlertCategory{models.AlertCategoryFraud, models.AlertCategoryPreDispute}

func redisChannel(category models.AlertCategory) string {
	return "alerts:" + string(category)
}

// RedisBus publishes over Redis pub/sub so every server instance sees every
// event. go-redis resubscribes on its own after a dropped connection; a
// repeated subscribe confirmation tells subscribers to resync.
type RedisBus struct {
	client     *redis.Client
	pubsub     *redis.PubSub
	local      *MemoryBus
	log        *logrus.Logger
	done       chan struct{}
	buffer     int
	subscribed map[string]bool
}

func NewRedisBus(ctx context.Context, client *redis.Client, buffer int, log *logrus.Logger) (*RedisBus, error) {
	channels := make([]string, 0, len(categories))
	for _, c := range categories {
		channels = append(channels, redisChannel(c))
	}
	pubsub := client.Subscribe(ctx, channels...)
	first, err := pubsub.Receive(ctx)
	if err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to redis channels: %w", err)
	}

	b := &RedisBus{
		client:     client,
		pubsub:     pubsub,
		local:      NewMemoryBus(buffer),
		log:        log,
		done:       make(chan struct{}),
		buffer:     buffer,
		subscribed: make(map[string]bool, len(channels)),
	}
	b.relay(first)
	go b.pump()
	return b, nil
}

func (b *RedisBus) pump() {
	defer close(b.done)
	size := b.buffer
	if size <= 0 {
		size = 100
	}
	for msg := range b.pubsub.ChannelWithSubscriptions(redis.WithChannelSize(size)) {
		if !b.relay(msg) {
			return
		}
	}
}

// relay handles one pub/sub frame. It reports false once the local bus is closed.
func (b *RedisBus) relay(msg interface{}) bool {
	switch m := msg.(type) {
	case *redis.Subscription:
		if m.Kind != "subscribe" {
			return true
		}
		if b.subscribed[m.Channel] {
			b.log.WithField("channel", m.Channel).Warn("redis resubscribed, asking subscribers to resync")
			return b.resync(m.Channel)
		}
		b.subscribed[m.Channel] = true
	case *redis.Message:
		var event Event
		if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
			b.log.WithError(err).WithField("channel", m.Channel).Warn("dropping malformed alert event")
			return true
		}
		return b.local.Publish(context.Background(), event) == nil
	}
	return true
}

func (b *RedisBus) resync(channel string) bool {
	for _, c := range categories {
		if redisChannel(c) != channel {
			continue
		}
		err := b.local.Publish(context.Background(), Event{
			ID:          uuid.NewString(),
			Type:        EventResync,
			Category:    c,
			PublishedAt: time.Now().UTC(),
		})
		return err == nil
	}
	return true
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannel(event.Category), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, category models.AlertCategory) (<-chan Event, func(), error) {
	return b.local.Subscribe(ctx, category)
}

// Close stops relaying. The Redis client is owned by the caller.
func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	b.local.Close()
	return err
}
