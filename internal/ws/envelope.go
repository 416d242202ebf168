package ws

import "encoding/json"

// Envelope is the wire format for socket events in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client -> server
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
	EventMarkRead          = "mark_read"
	EventGetOnlineUsers    = "get_online_users"
)

// server -> client
const (
	EventNewMessage     = "new_message"
	EventUserTyping     = "user_typing"
	EventMessagesRead   = "messages_read"
	EventUserJoined     = "user_joined"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventOnlineUsers    = "online_users"
	EventError          = "error"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
)

type conversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type sendMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type typingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// Event builds a serialized outbound frame. Marshal failures cannot happen
// for the payload shapes used here, so the error is swallowed.
func Event(typ string, payload any) []byte {
	b, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{Type: typ, Payload: payload})
	return b
}

func errorEvent(message string) []byte {
	return Event(EventError, map[string]string{"message": message})
}
