package api

import (
    "context"
    "encoding/json"
    "os"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub, so progress
// streams work when several API replicas share the load.
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

func (b *RedisBroker) Subscribe(planID string) chan PlanEvent {
    ch := make(chan PlanEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(planID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt PlanEvent
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

func (b *RedisBroker) Unsubscribe(planID string, ch chan PlanEvent) {
    // closing the channel suffices; the goroutine exits when ps.Channel
    // closes on connection loss
    close(ch)
}

func (b *RedisBroker) Publish(planID string, evt PlanEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(planID), data).Err()
}

func (b *RedisBroker) chanName(planID string) string { return "plan:" + planID }
