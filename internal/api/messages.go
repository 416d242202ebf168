package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/auth"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
	"github.com/dinhduclinh/sever-retrotrade/internal/ws"
)

const historyLimit = 25

func reqContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// authorizedConversation loads the conversation and enforces participancy.
func (s *Server) authorizedConversation(ctx context.Context, id, identity string) (*models.Conversation, error) {
	conv, err := s.deps.Conversations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(identity) {
		return nil, apperr.ErrForbidden
	}
	return conv, nil
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var body struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, apperr.ErrMissingFields, "send message")
	}
	body.Content = strings.TrimSpace(body.Content)
	if body.ConversationID == "" || body.Content == "" {
		return s.fail(c, apperr.ErrMissingFields, "send message")
	}
	return s.persistAndEmit(c, body.ConversationID, body.Content, "", "")
}

func (s *Server) sendMediaMessage(c *fiber.Ctx) error {
	var body struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
		MediaType      string `json:"media_type"`
		MediaURL       string `json:"media_url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, apperr.ErrMissingFields, "send media message")
	}
	if body.ConversationID == "" || body.MediaURL == "" {
		return s.fail(c, apperr.ErrMissingFields, "send media message")
	}
	if body.MediaType != models.MediaImage && body.MediaType != models.MediaVideo {
		return s.fail(c, apperr.ErrMissingFields, "send media message")
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		content = "[" + body.MediaType + "]"
	}
	return s.persistAndEmit(c, body.ConversationID, content, body.MediaType, body.MediaURL)
}

func (s *Server) persistAndEmit(c *fiber.Ctx, conversationID, content, mediaType, mediaURL string) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	conv, err := s.authorizedConversation(ctx, conversationID, identity)
	if err != nil {
		return s.fail(c, err, "send message")
	}

	msg, err := s.deps.Messages.Create(ctx, conversationID, identity, content, mediaType, mediaURL)
	if err != nil {
		return s.fail(c, err, "send message")
	}
	if loaded, err := s.deps.Messages.FindByID(ctx, msg.ID.Hex()); err == nil {
		msg = loaded
	}

	s.deps.Chat.EmitNewMessage(msg)

	// best-effort notification for the counterpart; the message itself is
	// already durable
	if recipient := conv.OtherParticipant(identity); recipient != "" {
		preview := content
		if len(preview) > 80 {
			preview = preview[:80]
		}
		if _, err := s.deps.Bridge.Notify(ctx, recipient, "new_message", "New message", preview,
			`{"conversation_id":"`+conversationID+`"}`); err != nil {
			s.log.Warnw("message notification failed", "recipient", recipient, "err", err)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	conversationID := c.Params("conversationId")
	ctx, cancel := reqContext()
	defer cancel()

	if _, err := s.authorizedConversation(ctx, conversationID, identity); err != nil {
		return s.fail(c, err, "list messages")
	}
	msgs, err := s.deps.Messages.FindByConversation(ctx, conversationID, historyLimit)
	if err != nil {
		return s.fail(c, err, "list messages")
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

type conversationView struct {
	*models.Conversation
	LastMessage *models.Message `json:"last_message,omitempty"`
	UnreadCount int64           `json:"unread_count"`
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	convs, err := s.deps.Conversations.ListByParticipant(ctx, identity)
	if err != nil {
		return s.fail(c, err, "list conversations")
	}

	views := make([]*conversationView, 0, len(convs))
	for _, conv := range convs {
		s.attachProfiles(ctx, conv)
		v := &conversationView{Conversation: conv}
		if last, err := s.deps.Messages.LastMessage(ctx, conv.ID.Hex()); err == nil {
			v.LastMessage = last
		} else if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Warnw("last message lookup failed", "conversation", conv.ID.Hex(), "err", err)
		}
		since := time.Time{}
		if lr := conv.LastReadFor(identity); lr != nil {
			since = *lr
		}
		if n, err := s.deps.Messages.CountUnread(ctx, conv.ID.Hex(), identity, since); err == nil {
			v.UnreadCount = n
		}
		views = append(views, v)
	}

	// most recent activity first
	sortConversationViews(views)
	return c.JSON(fiber.Map{"conversations": views})
}

func sortConversationViews(views []*conversationView) {
	activity := func(v *conversationView) time.Time {
		if v.LastMessage != nil {
			return v.LastMessage.CreatedAt
		}
		return v.UpdatedAt
	}
	for i := 1; i < len(views); i++ {
		for j := i; j > 0 && activity(views[j]).After(activity(views[j-1])); j-- {
			views[j], views[j-1] = views[j-1], views[j]
		}
	}
}

func (s *Server) attachProfiles(ctx context.Context, conv *models.Conversation) {
	if p, err := s.deps.Users.FindProfile(ctx, conv.ParticipantA); err == nil {
		conv.ProfileA = p
	}
	if p, err := s.deps.Users.FindProfile(ctx, conv.ParticipantB); err == nil {
		conv.ProfileB = p
	}
}

func (s *Server) createConversation(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	var body struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, apperr.ErrMissingFields, "create conversation")
	}
	if body.ParticipantID == "" || body.ParticipantID == identity {
		return s.fail(c, apperr.ErrMissingFields, "create conversation")
	}
	ctx, cancel := reqContext()
	defer cancel()

	conv, err := s.deps.Conversations.Create(ctx, identity, body.ParticipantID)
	if err != nil {
		return s.fail(c, err, "create conversation")
	}
	s.attachProfiles(ctx, conv)
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) getConversation(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	conv, err := s.authorizedConversation(ctx, c.Params("conversationId"), identity)
	if err != nil {
		return s.fail(c, err, "get conversation")
	}
	s.attachProfiles(ctx, conv)
	return c.JSON(conv)
}

func (s *Server) markConversationRead(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	conversationID := c.Params("conversationId")
	ctx, cancel := reqContext()
	defer cancel()

	if _, err := s.authorizedConversation(ctx, conversationID, identity); err != nil {
		return s.fail(c, err, "mark read")
	}
	now := time.Now().UTC()
	if err := s.deps.Conversations.SetLastRead(ctx, conversationID, identity, now); err != nil {
		return s.fail(c, err, "mark read")
	}
	if err := s.deps.Messages.MarkRead(ctx, conversationID, identity); err != nil {
		return s.fail(c, err, "mark read")
	}
	s.deps.Chat.Emit(conversationID, ws.EventMessagesRead, fiber.Map{
		"conversation_id": conversationID,
		"reader":          identity,
		"read_at":         now,
	})
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	var body struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, apperr.ErrMissingFields, "edit message")
	}
	body.Content = strings.TrimSpace(body.Content)
	if body.Content == "" {
		return s.fail(c, apperr.ErrMissingFields, "edit message")
	}
	ctx, cancel := reqContext()
	defer cancel()

	msg, err := s.deps.Messages.FindByID(ctx, c.Params("messageId"))
	if err != nil {
		return s.fail(c, err, "edit message")
	}
	if msg.SenderID != identity {
		return s.fail(c, apperr.ErrForbidden, "edit message")
	}
	if msg.IsDeleted {
		// deleted content is frozen
		return s.fail(c, apperr.ErrMissingFields, "edit message")
	}

	now := time.Now().UTC()
	msg.Content = body.Content
	msg.EditedAt = &now
	if err := s.deps.Messages.Save(ctx, msg); err != nil {
		return s.fail(c, err, "edit message")
	}
	s.deps.Chat.Emit(msg.ConversationID.Hex(), ws.EventMessageUpdated, msg)
	return c.JSON(msg)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	msg, err := s.deps.Messages.FindByID(ctx, c.Params("messageId"))
	if err != nil {
		return s.fail(c, err, "delete message")
	}
	if msg.SenderID != identity {
		return s.fail(c, apperr.ErrForbidden, "delete message")
	}
	if !msg.IsDeleted {
		now := time.Now().UTC()
		msg.Content = models.DeletedContent
		msg.IsDeleted = true
		msg.DeletedAt = &now
		if err := s.deps.Messages.Save(ctx, msg); err != nil {
			return s.fail(c, err, "delete message")
		}
		s.deps.Chat.Emit(msg.ConversationID.Hex(), ws.EventMessageDeleted, fiber.Map{
			"message_id":      msg.ID.Hex(),
			"conversation_id": msg.ConversationID.Hex(),
		})
	}
	return c.JSON(fiber.Map{"status": "deleted", "message": msg})
}
