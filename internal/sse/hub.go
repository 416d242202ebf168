package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Envelope is the tagged payload shape written as one SSE frame.
type Envelope struct {
	Type string `json:"type"` // "notification" | "unread_count"
	Data any    `json:"data"`
}

const (
	EnvelopeNotification = "notification"
	EnvelopeUnreadCount  = "unread_count"
)

// Subscriber is one open stream for an identity. Frames arrive on C as
// pre-serialized bytes; the channel is closed on unsubscribe.
type Subscriber struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (s *Subscriber) C() <-chan []byte { return s.ch }

// send is non-blocking and reports whether the frame was accepted. It holds
// the subscriber lock so a concurrent close cannot race the channel send.
func (s *Subscriber) send(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- b:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub fans notification envelopes out to every open stream of an identity.
// Multiple simultaneous streams per identity are supported (tabs, devices).
// State is process-local; recipients without streams are simply offline.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	buffer int
	log    *zap.SugaredLogger
}

func NewHub(buffer int, log *zap.SugaredLogger) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new stream for identity. The caller must arrange for
// Unsubscribe on stream close; the fiber stream handler does this with a defer.
func (h *Hub) Subscribe(identity string) *Subscriber {
	sub := &Subscriber{ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[identity]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[identity] = set
	}
	set[sub] = struct{}{}
	n := len(set)
	h.mu.Unlock()
	h.log.Infow("sse subscribed", "identity", identity, "streams", n)
	return sub
}

// Unsubscribe removes the stream and drops the identity entry when it was the
// last one. Safe to call more than once.
func (h *Hub) Unsubscribe(identity string, sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[identity]; ok {
		if _, member := set[sub]; member {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, identity)
			}
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Push serializes env once and delivers it to every open stream for identity,
// returning the number of streams that accepted it. A stream that cannot take
// the frame (closed or backed up) is removed so it cannot wedge later pushes;
// other streams are unaffected. Zero streams is a silent no-op.
func (h *Hub) Push(identity string, env Envelope) int {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("sse envelope marshal failed", "identity", identity, "err", err)
		return 0
	}

	h.mu.RLock()
	set := h.subs[identity]
	targets := make([]*Subscriber, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	sent := 0
	var broken []*Subscriber
	for _, sub := range targets {
		if sub.send(data) {
			sent++
		} else {
			broken = append(broken, sub)
		}
	}
	for _, sub := range broken {
		h.log.Warnw("sse stream not accepting writes, removing", "identity", identity)
		h.Unsubscribe(identity, sub)
	}
	return sent
}

// PushNotification delivers a notification envelope.
func (h *Hub) PushNotification(identity string, notification any) int {
	return h.Push(identity, Envelope{Type: EnvelopeNotification, Data: notification})
}

// PushUnreadCount delivers the recipient's current unread counter.
func (h *Hub) PushUnreadCount(identity string, count int64) int {
	return h.Push(identity, Envelope{Type: EnvelopeUnreadCount, Data: map[string]int64{"unread_count": count}})
}

// Stats is a point-in-time view of the hub, exposed for operators.
type Stats struct {
	TotalUsers       int            `json:"total_users"`
	TotalConnections int            `json:"total_connections"`
	PerUser          map[string]int `json:"connections_per_user"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{TotalUsers: len(h.subs), PerUser: make(map[string]int, len(h.subs))}
	for identity, set := range h.subs {
		st.PerUser[identity] = len(set)
		st.TotalConnections += len(set)
	}
	return st
}
