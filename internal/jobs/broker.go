package jobs

import (
	"sync"

	"github.com/seantiz/modelrouter/internal/model"
)

// subscriberBufferSize is the channel buffer for each snapshot subscriber.
// Snapshots are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans job snapshots out to live subscribers. It is safe for
// concurrent use.
//
// Closed topics are kept as markers so that a subscriber arriving after a
// job finished receives a closed channel instead of blocking forever. Forget
// removes the marker once the job itself has expired.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan model.JobStatus
	nextID int
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

// Subscribe returns a channel receiving snapshots of job id and an
// unsubscribe function. If the job has already finished the channel is
// closed immediately.
func (b *Broker) Subscribe(id string) (<-chan model.JobStatus, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[id]
	if !ok {
		t = &topic{subs: make(map[int]chan model.JobStatus)}
		b.topics[id] = t
	}

	ch := make(chan model.JobStatus, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	subID := t.nextID
	t.nextID++
	t.subs[subID] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, subID)
	}
}

// Publish sends st to every subscriber of st.ID, dropping it for
// subscribers whose buffers are full.
func (b *Broker) Publish(st model.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[st.ID]
	if !ok || t.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// Close ends the stream for job id. Subscriber channels are closed and later
// Subscribe calls receive a closed channel.
func (b *Broker) Close(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[id]
	if !ok {
		b.topics[id] = &topic{subs: make(map[int]chan model.JobStatus), closed: true}
		return
	}

	t.closed = true
	for subID, ch := range t.subs {
		close(ch)
		delete(t.subs, subID)
	}
}

// Forget drops the closed marker for job id.
func (b *Broker) Forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[id]; ok && t.closed {
		delete(b.topics, id)
	}
}
