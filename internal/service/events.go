package service

import (
	"sync"

	"github.com/arturoeanton/repolens/internal/domain"
)

// subscriberBuffer is how many updates a slow subscriber may lag behind
// before updates are dropped for it.
const subscriberBuffer = 10

// Broadcaster fans job status changes out to in-memory subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string][]chan domain.Job // subscribers per job
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string][]chan domain.Job)}
}

// Subscribe returns a channel that receives updates of job id.
func (b *Broadcaster) Subscribe(id string) chan domain.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Job, subscriberBuffer)
	b.subs[id] = append(b.subs[id], ch)
	return ch
}

// Unsubscribe removes ch and closes it.
func (b *Broadcaster) Unsubscribe(id string, ch chan domain.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[id]
	for i, s := range subs {
		if s == ch {
			subs = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, id)
	} else {
		b.subs[id] = subs
	}
}

// Publish sends job to its subscribers without blocking.
func (b *Broadcaster) Publish(job domain.Job) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[job.ID] {
		select {
		case ch <- job:
		default:
		}
	}
}

// Subscribers reports how many channels listen to id.
func (b *Broadcaster) Subscribers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}
