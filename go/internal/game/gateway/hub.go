// Package gateway distributes room events to live subscribers over websockets and,
// optionally, mirrors them to a JetStream stream.
package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// ErrSubscriptionDropped is reported to a subscriber whose queue overflowed.
var ErrSubscriptionDropped = errors.New("subscription dropped")

// SnapshotSource produces a room snapshot while holding the room's guard.
type SnapshotSource interface {
	WithSnapshot(code, playerID string, fn func(events.SnapshotPayload)) error
}

// Mirror receives a copy of every published event. Enqueue must not block.
type Mirror interface {
	Enqueue(ev events.Event)
}

type HubConfig struct {
	// QueueSize bounds each subscriber's pending events.
	QueueSize int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{QueueSize: 256}
}

type topic struct {
	seq  uint64
	subs map[string]*Subscription
}

// Hub fans room events out to subscribers. Publish is called with the room guard held,
// so per-room delivery order is publish order.
type Hub struct {
	cfg    HubConfig
	clock  clockwork.Clock
	source SnapshotSource
	mirror Mirror

	mu     sync.Mutex
	topics map[string]*topic
}

func NewHub(cfg HubConfig, clock clockwork.Clock) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultHubConfig().QueueSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		cfg:    cfg,
		clock:  clock,
		topics: make(map[string]*topic),
	}
}

// Attach sets where snapshots come from. The registry publishes through the hub, so the
// two are wired after both exist.
func (h *Hub) Attach(source SnapshotSource) {
	h.source = source
}

// SetMirror forwards every published event to m as well.
func (h *Hub) SetMirror(m Mirror) {
	h.mirror = m
}

// Subscription is one subscriber's ordered view of a room's events.
type Subscription struct {
	ID       string
	RoomCode string
	PlayerID string

	hub     *Hub
	ch      chan events.Event
	dropped bool
	closed  bool
}

// Events yields the snapshot followed by live events. It is closed when the subscriber
// unsubscribes, falls too far behind, or the room closes.
func (s *Subscription) Events() <-chan events.Event {
	return s.ch
}

// Err reports ErrSubscriptionDropped once the channel was closed because the queue overflowed.
func (s *Subscription) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.dropped {
		return ErrSubscriptionDropped
	}
	return nil
}

func (h *Hub) topic(code string) *topic {
	t, ok := h.topics[code]
	if !ok {
		t = &topic{subs: make(map[string]*Subscription)}
		h.topics[code] = t
	}
	return t
}

// Subscribe registers a member for a room's events. The first event is a snapshot taken
// under the room guard; its Seq is the last sequence number it already reflects.
func (h *Hub) Subscribe(code, playerID string) (*Subscription, error) {
	if h.source == nil {
		return nil, fmt.Errorf("hub has no snapshot source")
	}

	var (
		sub    *Subscription
		genErr error
	)
	err := h.source.WithSnapshot(code, playerID, func(snap events.SnapshotPayload) {
		ev, err := events.New(snap.RoomCode, events.TypeSnapshot, h.clock.Now(), snap)
		if err != nil {
			genErr = err
			return
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		t := h.topic(snap.RoomCode)
		ev.Seq = t.seq
		sub = &Subscription{
			ID:       uuid.NewString(),
			RoomCode: snap.RoomCode,
			PlayerID: playerID,
			hub:      h,
			ch:       make(chan events.Event, h.cfg.QueueSize+1),
		}
		sub.ch <- ev
		t.subs[sub.ID] = sub
	})
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return nil, genErr
	}

	log.Debug().
		Str("room_code", sub.RoomCode).
		Str("player_id", playerID).
		Str("subscription_id", sub.ID).
		Msg("subscribed to room events")
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[sub.RoomCode]; ok {
		delete(t.subs, sub.ID)
	}
	h.closeSub(sub)
}

// Publish assigns the room's next sequence number and queues ev for every subscriber.
// A subscriber whose queue is full is dropped rather than blocking the others.
func (h *Hub) Publish(code string, ev events.Event) {
	h.mu.Lock()
	t := h.topic(code)
	t.seq++
	ev.Seq = t.seq
	for id, sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(t.subs, id)
			sub.dropped = true
			h.closeSub(sub)
			log.Warn().
				Str("room_code", code).
				Str("player_id", sub.PlayerID).
				Str("subscription_id", sub.ID).
				Uint64("seq", ev.Seq).
				Msg("subscriber queue full, dropping subscription")
		}
	}
	h.mu.Unlock()

	if h.mirror != nil {
		h.mirror.Enqueue(ev)
	}
}

// CloseRoom closes every subscription of a room and forgets its sequence.
func (h *Hub) CloseRoom(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[code]
	if !ok {
		return
	}
	for _, sub := range t.subs {
		h.closeSub(sub)
	}
	delete(h.topics, code)
}

// Online reports whether playerID has any live subscription in the room.
func (h *Hub) Online(code, playerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[code]; ok {
		for _, sub := range t.subs {
			if sub.PlayerID == playerID {
				return true
			}
		}
	}
	return false
}

// Stats returns subscription counts for the stats endpoint.
func (h *Hub) Stats() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, t := range h.topics {
		total += len(t.subs)
	}
	return map[string]int{
		"rooms":         len(h.topics),
		"subscriptions": total,
	}
}

// closeSub must hold h.mu.
func (h *Hub) closeSub(sub *Subscription) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
