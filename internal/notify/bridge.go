package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dinhduclinh/sever-retrotrade/internal/models"
	"github.com/dinhduclinh/sever-retrotrade/internal/sse"
	"github.com/dinhduclinh/sever-retrotrade/internal/store"
)

// Bridge sits between write paths and the SSE hub. Persistence is the
// source of truth; pushes are best-effort and a recipient with no open
// stream simply sees the notification on next poll.
type Bridge struct {
	notifications store.NotificationStore
	users         store.UserStore
	hub           *sse.Hub
	log           *zap.SugaredLogger
}

func NewBridge(notifications store.NotificationStore, users store.UserStore, hub *sse.Hub, log *zap.SugaredLogger) *Bridge {
	return &Bridge{notifications: notifications, users: users, hub: hub, log: log}
}

// Notify persists a notification for one recipient, then pushes the
// notification and the recipient's recomputed unread count. A push failure
// never fails the call: the notification is already durable.
func (b *Bridge) Notify(ctx context.Context, identity, ntype, title, body, metadata string) (*models.Notification, error) {
	n := &models.Notification{
		UserID:    identity,
		Type:      ntype,
		Title:     title,
		Body:      body,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	b.hub.PushNotification(identity, n)
	count, err := b.notifications.CountUnread(ctx, identity)
	if err != nil {
		b.log.Warnw("unread recount after notify failed", "identity", identity, "err", err)
		return n, nil
	}
	b.hub.PushUnreadCount(identity, count)
	return n, nil
}

// PushUnread recomputes and pushes the unread counter for identity. Used
// after read-state mutations so open streams converge without polling.
func (b *Bridge) PushUnread(ctx context.Context, identity string) {
	count, err := b.notifications.CountUnread(ctx, identity)
	if err != nil {
		b.log.Warnw("unread recount failed", "identity", identity, "err", err)
		return
	}
	b.hub.PushUnreadCount(identity, count)
}

// BroadcastResult reports a bulk fan-out.
type BroadcastResult struct {
	Attempted int `json:"attempted"`
	Persisted int `json:"persisted"`
}

// BroadcastToAll persists one notification per active identity in a single
// bulk insert. Recipients pick it up lazily on their next poll; no
// per-identity push is attempted, a broadcast to a large user base would
// mostly hit identities with no open stream anyway.
func (b *Bridge) BroadcastToAll(ctx context.Context, ntype, title, body, metadata string) (*BroadcastResult, error) {
	identities, err := b.users.ListActiveIdentities(ctx)
	if err != nil {
		return nil, err
	}
	if len(identities) == 0 {
		return &BroadcastResult{}, nil
	}

	now := time.Now().UTC()
	ns := make([]*models.Notification, 0, len(identities))
	for _, id := range identities {
		ns = append(ns, &models.Notification{
			UserID:    id,
			Type:      ntype,
			Title:     title,
			Body:      body,
			Metadata:  metadata,
			CreatedAt: now,
		})
	}
	persisted, err := b.notifications.InsertMany(ctx, ns)
	if err != nil && persisted == 0 {
		return nil, err
	}
	if err != nil {
		// unordered insert: some documents may have landed
		b.log.Warnw("broadcast insert partially failed",
			"attempted", len(identities), "persisted", persisted, "err", err)
	}
	return &BroadcastResult{Attempted: len(identities), Persisted: persisted}, nil
}
