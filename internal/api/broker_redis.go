package api

import (
	"context"
	"encoding/json"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
	Subscribe(topic string) chan SSEEvent
	Unsubscribe(topic string, ch chan SSEEvent)
	Publish(topic string, evt SSEEvent)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker() (*RedisBroker, error) {
	url := os.Getenv("REDIS_URL")
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	return &RedisBroker{rdb: rdb}, nil
}

func (b *RedisBroker) Subscribe(topic string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(topic))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt SSEEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(topic string, ch chan SSEEvent) {
	// goroutine exits when ps.Channel closes on connection loss
	close(ch)
}

func (b *RedisBroker) Publish(topic string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(topic), data).Err()
}

func (b *RedisBroker) chanName(topic string) string { return "solve:" + topic }
