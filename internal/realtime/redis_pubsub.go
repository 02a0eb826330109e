package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	globalChannel         = "poll:global"
	questionChannelPrefix = "poll:question:"
	publishTimeout        = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance fan-out.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub implements Publisher and Subscriber over Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for polling events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishGlobal publishes an event to the shared channel every instance
// subscribes to.
func (r *RedisPubSub) PublishGlobal(event string, payload []byte) error {
	return r.publish(globalChannel, event, payload)
}

// PublishQuestion publishes an event to one question's channel.
func (r *RedisPubSub) PublishQuestion(questionID uuid.UUID, event string, payload []byte) error {
	return r.publish(questionChannelPrefix+questionID.String(), event, payload)
}

func (r *RedisPubSub) publish(channel, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// SubscribeGlobal subscribes to the shared channel.
func (r *RedisPubSub) SubscribeGlobal(handler func(event string, payload []byte)) (cancel func(), err error) {
	return r.subscribe(globalChannel, handler)
}

// SubscribeQuestion subscribes to one question's channel.
func (r *RedisPubSub) SubscribeQuestion(questionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	return r.subscribe(questionChannelPrefix+questionID.String(), handler)
}

func (r *RedisPubSub) subscribe(channel string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
