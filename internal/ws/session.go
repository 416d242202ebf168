package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
	"github.com/dinhduclinh/sever-retrotrade/internal/presence"
	"github.com/dinhduclinh/sever-retrotrade/internal/store"
)

// ChatHandler dispatches inbound socket events. Each inbound envelope is one
// unit of work; failures are reported back to the originating connection only
// and never interrupt other sessions.
type ChatHandler struct {
	rooms    *Rooms
	presence *presence.Registry
	convs    store.ConversationStore
	msgs     store.MessageStore
	log      *zap.SugaredLogger
}

func NewChatHandler(rooms *Rooms, reg *presence.Registry, convs store.ConversationStore, msgs store.MessageStore, log *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{rooms: rooms, presence: reg, convs: convs, msgs: msgs, log: log}
}

func (h *ChatHandler) Rooms() *Rooms { return h.rooms }

// Connected registers the connection and broadcasts user_online on the
// 0->1 presence transition.
func (h *ChatHandler) Connected(c *Client) {
	h.rooms.Register(c)
	if h.presence.Inc(c.Identity) {
		h.rooms.BroadcastGlobal(Event(EventUserOnline, map[string]string{"user_id": c.Identity}))
	}
	h.log.Infow("socket connected", "identity", c.Identity, "socket", c.ID)
}

// Disconnected tears the connection down: all room memberships are released,
// the presence count is decremented and user_offline goes out globally on the
// 1->0 transition.
func (h *ChatHandler) Disconnected(c *Client) {
	h.rooms.Unregister(c)
	if h.presence.Dec(c.Identity) {
		h.rooms.BroadcastGlobal(Event(EventUserOffline, map[string]string{"user_id": c.Identity}))
	}
	c.Close()
	h.log.Infow("socket disconnected", "identity", c.Identity, "socket", c.ID)
}

// Handle routes one inbound frame. Malformed frames are dropped.
func (h *ChatHandler) Handle(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	switch env.Type {
	case EventJoinConversation:
		h.handleJoin(ctx, c, env.Payload)
	case EventLeaveConversation:
		h.handleLeave(c, env.Payload)
	case EventSendMessage:
		h.handleSend(ctx, c, env.Payload)
	case EventTyping:
		h.handleTyping(ctx, c, env.Payload)
	case EventMarkRead:
		h.handleMarkRead(ctx, c, env.Payload)
	case EventGetOnlineUsers:
		c.Send(Event(EventOnlineUsers, h.presence.Online()))
	default:
		h.log.Debugw("unknown socket event", "type", env.Type, "identity", c.Identity)
	}
}

func (h *ChatHandler) handleJoin(ctx context.Context, c *Client, payload json.RawMessage) {
	var p conversationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == "" {
		c.Send(errorEvent("missing required fields"))
		return
	}
	if err := h.rooms.Join(ctx, c, p.ConversationID); err != nil {
		c.Send(errorEvent(h.clientMessage(err, "error joining conversation")))
	}
}

func (h *ChatHandler) handleLeave(c *Client, payload json.RawMessage) {
	var p conversationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == "" {
		return
	}
	h.rooms.Leave(c, p.ConversationID)
}

func (h *ChatHandler) handleSend(ctx context.Context, c *Client, payload json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == "" || p.Content == "" {
		c.Send(errorEvent("missing required fields"))
		return
	}

	// room membership is a soft cache, so participancy is re-checked on
	// every send
	conv, err := h.convs.FindByID(ctx, p.ConversationID)
	if err != nil {
		c.Send(errorEvent(h.clientMessage(err, "error sending message")))
		return
	}
	if !conv.HasParticipant(c.Identity) {
		c.Send(errorEvent("not authorized"))
		return
	}

	msg, err := h.msgs.Create(ctx, p.ConversationID, c.Identity, p.Content, "", "")
	if err != nil {
		h.log.Errorw("persist message failed", "identity", c.Identity, "err", err)
		c.Send(errorEvent("error sending message"))
		return
	}

	// reload with the sender profile projection; fall back to the bare
	// message if the projection read fails
	populated, err := h.msgs.FindByID(ctx, msg.ID.Hex())
	if err != nil {
		populated = msg
	}

	// everyone in the room receives it, the sender's other connections
	// included; the origin connection suppresses its own echo client-side
	h.rooms.Broadcast(p.ConversationID, Event(EventNewMessage, populated), nil)
}

func (h *ChatHandler) handleTyping(ctx context.Context, c *Client, payload json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == "" {
		return
	}
	// typing is advisory: failures are logged, never surfaced
	conv, err := h.convs.FindByID(ctx, p.ConversationID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.log.Warnw("typing lookup failed", "identity", c.Identity, "err", err)
		}
		return
	}
	if !conv.HasParticipant(c.Identity) {
		return
	}
	h.rooms.Broadcast(p.ConversationID, Event(EventUserTyping, map[string]any{
		"user_id":         c.Identity,
		"conversation_id": p.ConversationID,
		"is_typing":       p.IsTyping,
	}), c)
}

func (h *ChatHandler) handleMarkRead(ctx context.Context, c *Client, payload json.RawMessage) {
	var p conversationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == "" {
		c.Send(errorEvent("missing required fields"))
		return
	}
	conv, err := h.convs.FindByID(ctx, p.ConversationID)
	if err != nil {
		c.Send(errorEvent(h.clientMessage(err, "error marking as read")))
		return
	}
	if !conv.HasParticipant(c.Identity) {
		c.Send(errorEvent("not authorized"))
		return
	}

	if err := h.convs.SetLastRead(ctx, p.ConversationID, c.Identity, time.Now().UTC()); err != nil {
		h.log.Errorw("set last read failed", "identity", c.Identity, "err", err)
		c.Send(errorEvent("error marking as read"))
		return
	}
	if err := h.msgs.MarkRead(ctx, p.ConversationID, c.Identity); err != nil {
		h.log.Errorw("mark messages read failed", "identity", c.Identity, "err", err)
		c.Send(errorEvent("error marking as read"))
		return
	}

	h.rooms.Broadcast(p.ConversationID, Event(EventMessagesRead, map[string]string{
		"user_id":         c.Identity,
		"conversation_id": p.ConversationID,
	}), c)
}

// EmitNewMessage pushes a message created outside a socket context (the REST
// send path) to the conversation's room.
func (h *ChatHandler) EmitNewMessage(m *models.Message) {
	if m == nil {
		return
	}
	h.rooms.Broadcast(m.ConversationID.Hex(), Event(EventNewMessage, m), nil)
}

// Emit broadcasts an arbitrary event to a conversation's room. Used by the
// REST surface for message_updated / message_deleted.
func (h *ChatHandler) Emit(conversationID, eventType string, payload any) {
	h.rooms.Broadcast(conversationID, Event(eventType, payload), nil)
}

// clientMessage maps an error to what the origin connection may see. Store
// failures surface as the generic fallback and are logged with detail here.
func (h *ChatHandler) clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, apperr.ErrForbidden):
		return "not authorized to join this conversation"
	default:
		h.log.Errorw("store failure", "err", err)
		return fallback
	}
}
