package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"visitplan/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every API
// replica sees the events of jobs run by any other.
type RedisBroker struct {
	rdb *redis.Client
	log log.FieldLogger

	mu   sync.Mutex
	subs map[chan model.JobEvent]*redis.PubSub
}

func NewRedisBroker(ctx context.Context, url string, logger log.FieldLogger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBroker{rdb: rdb, log: logger, subs: map[chan model.JobEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(jobID string) chan model.JobEvent {
	ch := make(chan model.JobEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, chanName(jobID))
	// wait for the subscription to be confirmed so no event published
	// after Subscribe returns is lost
	if _, err := ps.Receive(ctx); err != nil {
		b.log.WithError(err).WithField("job", jobID).Warn("redis subscribe")
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.WithError(err).Warn("bad event on " + msg.Channel)
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Redis subscription; ch is closed once its
// forwarding goroutine drains.
func (b *RedisBroker) Unsubscribe(jobID string, ch chan model.JobEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(jobID string, evt model.JobEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.WithError(err).Warn("encode event")
		return
	}
	if err := b.rdb.Publish(ctx, chanName(jobID), data).Err(); err != nil {
		b.log.WithError(err).WithField("job", jobID).Warn("redis publish")
	}
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func chanName(jobID string) string { return "visitplan:job:" + jobID }
