package api

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
)

type fakeConversationStore struct {
	mu    sync.Mutex
	convs []*models.Conversation
}

func (f *fakeConversationStore) add(a, b string) *models.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b < a {
		a, b = b, a
	}
	conv := &models.Conversation{
		ID:           primitive.NewObjectID(),
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.convs = append(f.convs, conv)
	return conv
}

func (f *fakeConversationStore) FindByID(_ context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.ID.Hex() == id {
			return c, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeConversationStore) FindByParticipants(_ context.Context, a, b string) (*models.Conversation, error) {
	if b < a {
		a, b = b, a
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.ParticipantA == a && c.ParticipantB == b {
			return c, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeConversationStore) ListByParticipant(_ context.Context, identity string) ([]*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Conversation
	for _, c := range f.convs {
		if c.HasParticipant(identity) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversationStore) Create(ctx context.Context, a, b string) (*models.Conversation, error) {
	if existing, err := f.FindByParticipants(ctx, a, b); err == nil {
		return existing, nil
	}
	return f.add(a, b), nil
}

func (f *fakeConversationStore) SetLastRead(_ context.Context, id, participant string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.ID.Hex() != id {
			continue
		}
		switch participant {
		case c.ParticipantA:
			c.LastRead.ParticipantA = &at
		case c.ParticipantB:
			c.LastRead.ParticipantB = &at
		}
		return nil
	}
	return apperr.ErrNotFound
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []*models.Message
}

func (f *fakeMessageStore) Create(_ context.Context, conversationID, sender, content, mediaType, mediaURL string) (*models.Message, error) {
	convOID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: convOID,
		SenderID:       sender,
		Content:        content,
		MediaType:      mediaType,
		MediaURL:       mediaURL,
		ReadBy:         []string{},
		CreatedAt:      time.Now().UTC().Add(time.Duration(len(f.messages)) * time.Microsecond),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeMessageStore) FindByID(_ context.Context, id string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID.Hex() == id {
			return m, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeMessageStore) FindByConversation(_ context.Context, conversationID string, limit int64) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.messages {
		if m.ConversationID.Hex() == conversationID {
			out = append(out, m)
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (f *fakeMessageStore) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	msgs, _ := f.FindByConversation(ctx, conversationID, 0)
	if len(msgs) == 0 {
		return nil, apperr.ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (f *fakeMessageStore) CountUnread(_ context.Context, conversationID, reader string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ConversationID.Hex() != conversationID || m.SenderID == reader || m.IsDeleted {
			continue
		}
		if since.IsZero() || m.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, conversationID, reader string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ConversationID.Hex() != conversationID || m.SenderID == reader {
			continue
		}
		seen := false
		for _, r := range m.ReadBy {
			if r == reader {
				seen = true
				break
			}
		}
		if !seen {
			m.ReadBy = append(m.ReadBy, reader)
		}
	}
	return nil
}

func (f *fakeMessageStore) Save(_ context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.messages {
		if existing.ID == m.ID {
			f.messages[i] = m
			return nil
		}
	}
	return apperr.ErrNotFound
}

type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications []*models.Notification
}

func (f *fakeNotificationStore) Create(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = primitive.NewObjectID()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotificationStore) InsertMany(_ context.Context, ns []*models.Notification) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range ns {
		n.ID = primitive.NewObjectID()
		f.notifications = append(f.notifications, n)
	}
	return len(ns), nil
}

func (f *fakeNotificationStore) FindByRecipient(_ context.Context, identity string, isRead *bool, skip, limit int64) ([]*models.Notification, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.Notification
	for _, n := range f.notifications {
		if n.UserID != identity {
			continue
		}
		if isRead != nil && n.IsRead != *isRead {
			continue
		}
		all = append(all, n)
	}
	total := int64(len(all))
	if skip >= total {
		return nil, total, nil
	}
	all = all[skip:]
	if limit > 0 && int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeNotificationStore) FindByID(_ context.Context, id, identity string) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.ID.Hex() == id && n.UserID == identity {
			return n, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeNotificationStore) MarkRead(_ context.Context, id, identity string) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.ID.Hex() == id && n.UserID == identity {
			n.IsRead = true
			return n, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeNotificationStore) MarkAllRead(_ context.Context, identity string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, x := range f.notifications {
		if x.UserID == identity && !x.IsRead {
			x.IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeNotificationStore) Delete(_ context.Context, id, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID.Hex() == id && n.UserID == identity {
			f.notifications = append(f.notifications[:i], f.notifications[i+1:]...)
			return nil
		}
	}
	return apperr.ErrNotFound
}

func (f *fakeNotificationStore) DeleteRead(_ context.Context, identity string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.Notification
	var removed int64
	for _, n := range f.notifications {
		if n.UserID == identity && n.IsRead {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	f.notifications = kept
	return removed, nil
}

func (f *fakeNotificationStore) CountUnread(_ context.Context, identity string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, x := range f.notifications {
		if x.UserID == identity && !x.IsRead {
			n++
		}
	}
	return n, nil
}

type fakeUserStore struct {
	identities []string
	profiles   map[string]*models.UserProfile
}

func (f *fakeUserStore) ListActiveIdentities(context.Context) ([]string, error) {
	return f.identities, nil
}

func (f *fakeUserStore) FindProfile(_ context.Context, identity string) (*models.UserProfile, error) {
	if p, ok := f.profiles[identity]; ok {
		return p, nil
	}
	return nil, apperr.ErrNotFound
}
