package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dinhduclinh/sever-retrotrade/internal/auth"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
	"github.com/dinhduclinh/sever-retrotrade/internal/notify"
	"github.com/dinhduclinh/sever-retrotrade/internal/presence"
	"github.com/dinhduclinh/sever-retrotrade/internal/sse"
	"github.com/dinhduclinh/sever-retrotrade/internal/ws"
)

const testSecret = "api-test-secret"

type apiFixture struct {
	server        *Server
	convs         *fakeConversationStore
	msgs          *fakeMessageStore
	notifications *fakeNotificationStore
	users         *fakeUserStore
	hub           *sse.Hub
	chat          *ws.ChatHandler
}

func newAPIFixture() *apiFixture {
	log := zap.NewNop().Sugar()
	convs := &fakeConversationStore{}
	msgs := &fakeMessageStore{}
	notifications := &fakeNotificationStore{}
	users := &fakeUserStore{profiles: map[string]*models.UserProfile{}}

	rooms := ws.NewRooms(convs, log)
	reg := presence.NewRegistry()
	chat := ws.NewChatHandler(rooms, reg, convs, msgs, log)
	hub := sse.NewHub(8, log)
	bridge := notify.NewBridge(notifications, users, hub, log)

	server := NewServer(Deps{
		Auth:          auth.New(testSecret),
		Conversations: convs,
		Messages:      msgs,
		Notifications: notifications,
		Users:         users,
		Chat:          chat,
		Hub:           hub,
		Bridge:        bridge,
		WSOptions: ws.Options{
			PingInterval:    30 * time.Second,
			WriteDeadline:   10 * time.Second,
			MaxMessageSize:  4096,
			RateLimitPerSec: 20,
			SendBuffer:      16,
		},
		SSEKeepalive: 15 * time.Second,
		Log:          log,
	})
	return &apiFixture{
		server:        server,
		convs:         convs,
		msgs:          msgs,
		notifications: notifications,
		users:         users,
		hub:           hub,
		chat:          chat,
	}
}

func token(t *testing.T, identity, role string) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		UserID: identity,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func (fx *apiFixture) do(t *testing.T, method, path, bearer string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := fx.server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	fx := newAPIFixture()
	status, body := fx.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "ok")
}

func TestRESTRequiresToken(t *testing.T) {
	fx := newAPIFixture()
	status, _ := fx.do(t, http.MethodGet, "/api/messages/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = fx.do(t, http.MethodGet, "/api/messages/conversations", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSendMessage(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")

	status, body := fx.do(t, http.MethodPost, "/api/messages/send", token(t, "alice", ""), map[string]string{
		"conversation_id": conv.ID.Hex(),
		"content":         "hello there",
	})
	require.Equal(t, http.StatusCreated, status)

	var msg models.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "hello there", msg.Content)
	assert.Empty(t, msg.ReadBy)
	require.Len(t, fx.msgs.messages, 1)

	// counterpart gets a persisted notification
	require.Len(t, fx.notifications.notifications, 1)
	n := fx.notifications.notifications[0]
	assert.Equal(t, "bob", n.UserID)
	assert.Equal(t, "new_message", n.Type)
}

func TestSendMessageValidation(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")
	tok := token(t, "alice", "")

	status, _ := fx.do(t, http.MethodPost, "/api/messages/send", tok, map[string]string{
		"conversation_id": conv.ID.Hex(),
		"content":         "   ",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = fx.do(t, http.MethodPost, "/api/messages/send", tok, map[string]string{
		"content": "no conversation",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, fx.msgs.messages)
}

func TestSendMessageAuthz(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")

	status, _ := fx.do(t, http.MethodPost, "/api/messages/send", token(t, "eve", ""), map[string]string{
		"conversation_id": conv.ID.Hex(),
		"content":         "intrusion",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = fx.do(t, http.MethodPost, "/api/messages/send", token(t, "alice", ""), map[string]string{
		"conversation_id": "507f1f77bcf86cd799439011",
		"content":         "void",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Empty(t, fx.msgs.messages)
}

func TestSendMediaMessage(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")
	tok := token(t, "alice", "")

	status, body := fx.do(t, http.MethodPost, "/api/messages/send-media", tok, map[string]string{
		"conversation_id": conv.ID.Hex(),
		"media_type":      "image",
		"media_url":       "https://cdn.example/p.jpg",
	})
	require.Equal(t, http.StatusCreated, status)
	var msg models.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "[image]", msg.Content)
	assert.Equal(t, "https://cdn.example/p.jpg", msg.MediaURL)

	// unknown media type is rejected
	status, _ = fx.do(t, http.MethodPost, "/api/messages/send-media", tok, map[string]string{
		"conversation_id": conv.ID.Hex(),
		"media_type":      "executable",
		"media_url":       "https://cdn.example/x",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListMessagesChronological(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")
	tok := token(t, "alice", "")

	for i := 0; i < 30; i++ {
		_, _ = fx.msgs.Create(context.Background(), conv.ID.Hex(), "bob", "m", "", "")
	}
	status, body := fx.do(t, http.MethodGet, "/api/messages/"+conv.ID.Hex(), tok, nil)
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Messages []*models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Messages, 25, "history is capped at the latest 25")
	for i := 1; i < len(out.Messages); i++ {
		assert.False(t, out.Messages[i].CreatedAt.Before(out.Messages[i-1].CreatedAt))
	}

	status, _ = fx.do(t, http.MethodGet, "/api/messages/"+conv.ID.Hex(), token(t, "eve", ""), nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestListConversationsWithUnreadCounts(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")
	fx.users.profiles["bob"] = &models.UserProfile{FullName: "Bob"}
	_, _ = fx.msgs.Create(context.Background(), conv.ID.Hex(), "bob", "one", "", "")
	_, _ = fx.msgs.Create(context.Background(), conv.ID.Hex(), "bob", "two", "", "")
	_, _ = fx.msgs.Create(context.Background(), conv.ID.Hex(), "alice", "own messages never count", "", "")

	status, body := fx.do(t, http.MethodGet, "/api/messages/conversations", token(t, "alice", ""), nil)
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Conversations []struct {
			UnreadCount int64           `json:"unread_count"`
			LastMessage *models.Message `json:"last_message"`
		} `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Conversations, 1)
	assert.Equal(t, int64(2), out.Conversations[0].UnreadCount)
	require.NotNil(t, out.Conversations[0].LastMessage)
	assert.Equal(t, "own messages never count", out.Conversations[0].LastMessage.Content)
	assert.Contains(t, string(body), "Bob")
}

func TestCreateConversation(t *testing.T) {
	fx := newAPIFixture()
	tok := token(t, "alice", "")

	status, body := fx.do(t, http.MethodPost, "/api/messages/conversations", tok, map[string]string{
		"participant_id": "bob",
	})
	require.Equal(t, http.StatusCreated, status)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))
	assert.True(t, conv.HasParticipant("alice"))
	assert.True(t, conv.HasParticipant("bob"))

	// create-or-get: same pair resolves to the same conversation
	status, body = fx.do(t, http.MethodPost, "/api/messages/conversations", token(t, "bob", ""), map[string]string{
		"participant_id": "alice",
	})
	require.Equal(t, http.StatusCreated, status)
	var again models.Conversation
	require.NoError(t, json.Unmarshal(body, &again))
	assert.Equal(t, conv.ID, again.ID)
	assert.Len(t, fx.convs.convs, 1)

	// self conversation is rejected
	status, _ = fx.do(t, http.MethodPost, "/api/messages/conversations", tok, map[string]string{
		"participant_id": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMarkConversationRead(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")
	_, _ = fx.msgs.Create(context.Background(), conv.ID.Hex(), "alice", "unread", "", "")

	status, _ := fx.do(t, http.MethodPut, "/api/messages/conversations/"+conv.ID.Hex()+"/mark-read", token(t, "bob", ""), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"bob"}, fx.msgs.messages[0].ReadBy)
	assert.NotNil(t, conv.LastRead.ParticipantB, "bob's slot is written")
	assert.Nil(t, conv.LastRead.ParticipantA)
}

func TestEditMessage(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")
	msg, _ := fx.msgs.Create(context.Background(), conv.ID.Hex(), "alice", "original", "", "")
	path := "/api/messages/message/" + msg.ID.Hex()

	// sender-only
	status, _ := fx.do(t, http.MethodPut, path, token(t, "bob", ""), map[string]string{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, status)

	// empty content
	status, _ = fx.do(t, http.MethodPut, path, token(t, "alice", ""), map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := fx.do(t, http.MethodPut, path, token(t, "alice", ""), map[string]string{"content": "amended"})
	require.Equal(t, http.StatusOK, status)
	var edited models.Message
	require.NoError(t, json.Unmarshal(body, &edited))
	assert.Equal(t, "amended", edited.Content)
	assert.NotNil(t, edited.EditedAt)
}

func TestDeleteMessageAndEditAfterDelete(t *testing.T) {
	fx := newAPIFixture()
	conv := fx.convs.add("alice", "bob")
	msg, _ := fx.msgs.Create(context.Background(), conv.ID.Hex(), "alice", "regret", "", "")
	path := "/api/messages/message/" + msg.ID.Hex()

	status, _ := fx.do(t, http.MethodDelete, path, token(t, "bob", ""), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = fx.do(t, http.MethodDelete, path, token(t, "alice", ""), nil)
	require.Equal(t, http.StatusOK, status)
	stored := fx.msgs.messages[0]
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, models.DeletedContent, stored.Content)
	assert.NotNil(t, stored.DeletedAt)

	// repeat delete stays successful and does not touch deletedAt again
	firstDeletedAt := *stored.DeletedAt
	status, _ = fx.do(t, http.MethodDelete, path, token(t, "alice", ""), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, firstDeletedAt, *fx.msgs.messages[0].DeletedAt)

	// a deleted message can no longer be edited
	status, _ = fx.do(t, http.MethodPut, path, token(t, "alice", ""), map[string]string{"content": "resurrect"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.DeletedContent, fx.msgs.messages[0].Content)
}

func TestNotificationLifecycle(t *testing.T) {
	fx := newAPIFixture()
	tok := token(t, "alice", "")
	for i := 0; i < 3; i++ {
		require.NoError(t, fx.notifications.Create(context.Background(), &models.Notification{
			UserID: "alice", Type: "offer", Title: "Offer", CreatedAt: time.Now().UTC(),
		}))
	}
	require.NoError(t, fx.notifications.Create(context.Background(), &models.Notification{
		UserID: "bob", Type: "offer", Title: "Not alice's", CreatedAt: time.Now().UTC(),
	}))

	status, body := fx.do(t, http.MethodGet, "/api/notifications/", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Notifications []*models.Notification `json:"notifications"`
		Total         int64                  `json:"total"`
		UnreadCount   int64                  `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list.Notifications, 3)
	assert.Equal(t, int64(3), list.UnreadCount)

	id := list.Notifications[0].ID.Hex()
	status, _ = fx.do(t, http.MethodPut, "/api/notifications/"+id+"/read", tok, nil)
	require.Equal(t, http.StatusOK, status)

	// is_read filter
	status, body = fx.do(t, http.MethodGet, "/api/notifications/?is_read=false", tok, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list.Notifications, 2)

	status, _ = fx.do(t, http.MethodPut, "/api/notifications/read-all", tok, nil)
	require.Equal(t, http.StatusOK, status)
	unread, _ := fx.notifications.CountUnread(context.Background(), "alice")
	assert.Zero(t, unread)

	status, body = fx.do(t, http.MethodDelete, "/api/notifications/read/all", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"deleted":3`)

	// bob's notification is untouched and unreachable for alice
	status, _ = fx.do(t, http.MethodGet, "/api/notifications/"+fx.notifications.notifications[0].ID.Hex(), tok, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMarkNotificationReadPushesUnreadCount(t *testing.T) {
	fx := newAPIFixture()
	tok := token(t, "alice", "")
	require.NoError(t, fx.notifications.Create(context.Background(), &models.Notification{
		UserID: "alice", Type: "offer", Title: "Offer", CreatedAt: time.Now().UTC(),
	}))
	sub := fx.hub.Subscribe("alice")
	defer fx.hub.Unsubscribe("alice", sub)

	status, _ := fx.do(t, http.MethodPut, "/api/notifications/"+fx.notifications.notifications[0].ID.Hex()+"/read", tok, nil)
	require.Equal(t, http.StatusOK, status)

	select {
	case frame := <-sub.C():
		assert.Contains(t, string(frame), `"unread_count":0`)
	case <-time.After(time.Second):
		t.Fatal("no unread_count frame after mark-read")
	}
}

func TestBroadcastNotificationRequiresAdmin(t *testing.T) {
	fx := newAPIFixture()
	fx.users.identities = []string{"alice", "bob"}

	status, _ := fx.do(t, http.MethodPost, "/api/notifications/broadcast", token(t, "alice", "user"), map[string]string{
		"title": "Maintenance",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := fx.do(t, http.MethodPost, "/api/notifications/broadcast", token(t, "root", "admin"), map[string]string{
		"title": "Maintenance",
		"body":  "tonight",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"attempted":2`)
	assert.Len(t, fx.notifications.notifications, 2)
}

func TestStreamStats(t *testing.T) {
	fx := newAPIFixture()
	sub := fx.hub.Subscribe("alice")
	defer fx.hub.Unsubscribe("alice", sub)

	status, body := fx.do(t, http.MethodGet, "/api/notifications/stream/stats", token(t, "alice", ""), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total_connections":1`)
}
