// Bus is the local, in-process half of the Event Bus: rooms of
// subscriber channels guarded by a mutex. Publishing fans out to every
// subscriber of a room the way
// crabstack's projects/crab-gateway/internal/dispatch.Dispatcher fans
// one event out to every registered subscriber, simplified here since
// delivery to a socket write-pump is fire-and-forget rather than
// retried.
package eventbus

import (
	"strconv"
	"sync"

	"github.com/penelope/inbox/logging"
)

type subscription struct {
	id string
	ch chan Envelope
}

type Bus struct {
	mu    sync.Mutex
	rooms map[string][]subscription
	seq   int
}

func NewBus() *Bus {
	return &Bus{rooms: make(map[string][]subscription)}
}

// Subscribe registers a buffered channel against a room and returns an
// unsubscribe function the Socket Gateway calls on disconnect.
func (b *Bus) Subscribe(room string) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := room + "#" + strconv.Itoa(b.seq)
	ch := make(chan Envelope, 32)
	b.rooms[room] = append(b.rooms[room], subscription{id: id, ch: ch})

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.rooms[room]
		for i, s := range subs {
			if s.id == id {
				close(s.ch)
				b.rooms[room] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.rooms[room]) == 0 {
			delete(b.rooms, room)
		}
	}
	return ch, unsubscribe
}

// PublishLocal fans an event out to every subscriber of Room within
// this process only. Callers that need cross-instance delivery go
// through Mirror instead.
func (b *Bus) PublishLocal(evt Envelope) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.rooms[evt.Room]...)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			logging.Warnf("eventbus: room %s subscriber %s is full, dropping event %s", evt.Room, s.id, evt.Type)
		}
	}
}
