package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/store"
)

// Rooms routes events into conversation-scoped broadcast groups and keeps
// the global set used for presence events. Membership is a soft cache of who
// is listening, rebuilt as clients (re)join; it is never an authorization
// source of truth.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	global map[*Client]struct{}

	convs store.ConversationStore
	log   *zap.SugaredLogger
}

func NewRooms(convs store.ConversationStore, log *zap.SugaredLogger) *Rooms {
	return &Rooms{
		rooms:  make(map[string]map[*Client]struct{}),
		global: make(map[*Client]struct{}),
		convs:  convs,
		log:    log,
	}
}

// Register adds a connection to the global set.
func (r *Rooms) Register(c *Client) {
	r.mu.Lock()
	r.global[c] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes the connection from the global set and from every room
// it joined. Part of disconnect teardown.
func (r *Rooms) Unregister(c *Client) {
	r.mu.Lock()
	delete(r.global, c)
	for id, members := range r.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, id)
		}
	}
	r.mu.Unlock()
}

// Join authorizes the connection against conversation participancy and
// subscribes it to the room. Other members get a non-authoritative
// user_joined hint.
func (r *Rooms) Join(ctx context.Context, c *Client, conversationID string) error {
	conv, err := r.convs.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(c.Identity) {
		return apperr.ErrForbidden
	}

	r.mu.Lock()
	members, ok := r.rooms[conversationID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[conversationID] = members
	}
	members[c] = struct{}{}
	r.mu.Unlock()

	r.Broadcast(conversationID, Event(EventUserJoined, map[string]string{
		"user_id":         c.Identity,
		"conversation_id": conversationID,
	}), c)
	r.log.Infow("joined conversation", "identity", c.Identity, "conversation", conversationID)
	return nil
}

// Leave unsubscribes unconditionally; leaving a room you are not in is a no-op.
func (r *Rooms) Leave(c *Client, conversationID string) {
	r.mu.Lock()
	if members, ok := r.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	r.mu.Unlock()
}

// Broadcast delivers data to every member of the room except exclude (may be
// nil). An empty room is a silent no-op. Each delivery is an independent
// non-blocking send, so one wedged connection cannot stall the rest.
func (r *Rooms) Broadcast(conversationID string, data []byte, exclude *Client) {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.rooms[conversationID]))
	for c := range r.rooms[conversationID] {
		if c != exclude {
			members = append(members, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range members {
		if !c.Send(data) {
			r.log.Warnw("dropping frame for slow socket", "identity", c.Identity, "conversation", conversationID)
		}
	}
}

// BroadcastGlobal delivers data to every connected client. Used for presence
// transitions, which are global rather than room-scoped.
func (r *Rooms) BroadcastGlobal(data []byte) {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.global))
	for c := range r.global {
		members = append(members, c)
	}
	r.mu.RUnlock()

	for _, c := range members {
		c.Send(data)
	}
}

// InRoom reports current membership; used by tests and diagnostics.
func (r *Rooms) InRoom(c *Client, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][c]
	return ok
}
