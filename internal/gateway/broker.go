package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coursechat/pkg/constant"
)

// Broker names
const (
	BrokerLocal = "local"
	BrokerRedis = "redis"
)

// Event is what travels through a Broker to the members of a room
type Event struct {
	// Frame is the encoded WSResponse written to each member
	Frame []byte `json:"frame,omitempty"`
	// ExcludeUserId skips every connection of that user
	ExcludeUserId string `json:"excludeUserId,omitempty"`
	// JoinRoom subscribes each member to another room before Frame is written
	JoinRoom string `json:"joinRoom,omitempty"`
}

// DeliverFunc hands an event to the local members of topic
type DeliverFunc func(ctx context.Context, topic string, event *Event)

// Broker fans events out to every gateway instance
type Broker interface {
	Publish(ctx context.Context, topic string, event *Event) error
	// Subscribe starts delivering published events to deliver
	Subscribe(ctx context.Context, deliver DeliverFunc) error
	Close() error
}

// LocalBroker delivers in process, for single instance deployments and tests
type LocalBroker struct {
	mu      sync.RWMutex
	deliver DeliverFunc
}

// NewLocalBroker creates a new LocalBroker
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

// Publish delivers the event synchronously
func (b *LocalBroker) Publish(ctx context.Context, topic string, event *Event) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver != nil {
		deliver(ctx, topic, event)
	}
	return nil
}

// Subscribe sets the delivery callback
func (b *LocalBroker) Subscribe(_ context.Context, deliver DeliverFunc) error {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
	return nil
}

// Close is a no-op
func (b *LocalBroker) Close() error {
	return nil
}

// redisEnvelope is the pub/sub payload of RedisBroker
type redisEnvelope struct {
	Topic string `json:"topic"`
	Event *Event `json:"event"`
}

// RedisBroker relays events through a redis pub/sub channel shared by all instances
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	mu      sync.Mutex
	pubsub  *redis.PubSub
	done    chan struct{}
}

// NewRedisBroker creates a new RedisBroker
func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{
		rdb:     rdb,
		channel: constant.RedisKeyBroadcast(),
		done:    make(chan struct{}),
	}
}

// Publish sends the event to every subscribed instance, including this one
func (b *RedisBroker) Publish(ctx context.Context, topic string, event *Event) error {
	data, err := json.Marshal(redisEnvelope{Topic: topic, Event: event})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

// Subscribe starts the receive loop. It returns once the subscription is confirmed.
func (b *RedisBroker) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	go b.receiveLoop(ctx, pubsub.Channel(), deliver)
	log.Info("redis broker subscribed: channel=%s", b.channel)
	return nil
}

func (b *RedisBroker) receiveLoop(ctx context.Context, ch <-chan *redis.Message, deliver DeliverFunc) {
	defer close(b.done)
	for msg := range ch {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Event == nil {
			log.CtxWarn(ctx, "drop malformed broker message: error=%v", err)
			continue
		}
		deliver(ctx, env.Topic, env.Event)
	}
}

// Close stops the subscription and waits for the receive loop to exit
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-b.done
	return err
}
