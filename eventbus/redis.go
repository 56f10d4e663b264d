package eventbus

import (
	"context"
	"encoding/json"

	"github.com/penelope/inbox/coordination"
	"github.com/penelope/inbox/logging"
)

// channelPrefix namespaces the Redis Pub/Sub channel from the lock and
// session key prefixes coordination.Store already owns.
const channelPrefix = "events:"

// Mirror glues the local Bus to the Coordination Store's Pub/Sub so an
// event published on one server instance reaches agent consoles
// connected to any other instance (spec.md §4.6: "works across
// multiple server processes").
type Mirror struct {
	store *coordination.Store
	bus   *Bus
}

func NewMirror(store *coordination.Store, bus *Bus) *Mirror {
	return &Mirror{store: store, bus: bus}
}

// Publish sends evt through Redis only; Run delivers it back into this
// instance's local Bus the same way it delivers events published by
// any other instance, so there is exactly one delivery path rather
// than a local fast-path plus a mirrored one racing each other.
func (m *Mirror) Publish(ctx context.Context, evt Envelope) {
	b, err := json.Marshal(evt)
	if err != nil {
		logging.Errorf("eventbus: marshal %s for room %s: %v", evt.Type, evt.Room, err)
		return
	}
	if err := m.store.Publish(ctx, channelPrefix+evt.Room, b); err != nil {
		logging.Errorf("eventbus: publish to %s: %v", evt.Room, err)
	}
}

// Run subscribes to every room event pattern and delivers inbound
// messages into the local Bus. Call once at startup; blocks until ctx
// is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	pubsub := m.store.Client().PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logging.Warnf("eventbus: discarding malformed event on %s: %v", msg.Channel, err)
				continue
			}
			m.bus.PublishLocal(evt)
		}
	}
}
