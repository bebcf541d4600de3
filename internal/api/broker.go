package api

import (
	"sync"

	"visitplan/internal/model"
)

// EventBroker fans job events out to stream subscribers.
type EventBroker interface {
	Subscribe(jobID string) chan model.JobEvent
	Unsubscribe(jobID string, ch chan model.JobEvent)
	Publish(jobID string, evt model.JobEvent)
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.JobEvent]struct{} // jobId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.JobEvent]struct{}{}}
}

func (b *Broker) Subscribe(jobID string) chan model.JobEvent {
	ch := make(chan model.JobEvent, 16)
	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = map[chan model.JobEvent]struct{}{}
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(jobID string, ch chan model.JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[jobID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, jobID)
	}
	close(ch)
}

// Publish never blocks; slow subscribers miss events.
func (b *Broker) Publish(jobID string, evt model.JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[jobID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
