package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=./mock/realtime.go -package=mock -source=manager.go

var log = logrus.WithField("package", "realtime")

// Stream is a transport delivering envelopes for a logical channel. The
// returned release function stops delivery for that channel.
type Stream interface {
	Subscribe(ctx context.Context, channel string, fn func(Envelope)) (func(), error)
}

// Manager multiplexes consumers over per-channel stream subscriptions.
// Subscribing twice to the same channel reuses the single underlying stream
// subscription; after Unsubscribe returns no further callbacks fire.
type Manager struct {
	mu     sync.Mutex
	stream Stream
	subs   map[string]*channelSub
}

type channelSub struct {
	release   func()
	consumers map[uuid.UUID]func(Event)
}

// NewManager ...
func NewManager(stream Stream) *Manager {
	return &Manager{
		stream: stream,
		subs:   map[string]*channelSub{},
	}
}

// Handle identifies one consumer's subscription.
type Handle struct {
	id      uuid.UUID
	channel string
	m       *Manager
}

// Subscribe attaches fn to a logical channel. Envelopes that fail to
// normalize are logged and dropped, never delivered.
func (m *Manager) Subscribe(ctx context.Context, channel string, fn func(Event)) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[channel]
	if !ok {
		sub = &channelSub{consumers: map[uuid.UUID]func(Event){}}

		release, err := m.stream.Subscribe(ctx, channel, func(env Envelope) {
			m.dispatch(channel, env)
		})
		if err != nil {
			return Handle{}, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}

		sub.release = release
		m.subs[channel] = sub
	}

	id := uuid.New()
	sub.consumers[id] = fn

	return Handle{id: id, channel: channel, m: m}, nil
}

// Unsubscribe detaches the consumer. The last consumer on a channel releases
// the underlying stream subscription.
func (h Handle) Unsubscribe() {
	if h.m == nil {
		return
	}

	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	sub, ok := h.m.subs[h.channel]
	if !ok {
		return
	}

	delete(sub.consumers, h.id)

	if len(sub.consumers) == 0 {
		if sub.release != nil {
			sub.release()
		}
		delete(h.m.subs, h.channel)
	}
}

// Close releases every channel.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch, sub := range m.subs {
		if sub.release != nil {
			sub.release()
		}
		delete(m.subs, ch)
	}
}

func (m *Manager) dispatch(channel string, env Envelope) {
	ev, err := Normalize(env)
	if err != nil {
		log.WithError(err).WithField("channel", channel).Warn("skip malformed push event")
		return
	}

	// consumers are invoked under the lock so that no callback can fire
	// after Unsubscribe has returned
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[channel]
	if !ok {
		return
	}

	for _, fn := range sub.consumers {
		fn(ev)
	}
}
