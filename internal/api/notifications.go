package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/auth"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
)

func (s *Server) listNotifications(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var isRead *bool
	if q := c.Query("is_read"); q != "" {
		v := q == "true"
		isRead = &v
	}

	ns, total, err := s.deps.Notifications.FindByRecipient(ctx, identity, isRead, (page-1)*limit, limit)
	if err != nil {
		return s.fail(c, err, "list notifications")
	}
	if ns == nil {
		ns = []*models.Notification{}
	}
	unread, err := s.deps.Notifications.CountUnread(ctx, identity)
	if err != nil {
		return s.fail(c, err, "list notifications")
	}
	return c.JSON(fiber.Map{
		"notifications": ns,
		"total":         total,
		"page":          page,
		"limit":         limit,
		"unread_count":  unread,
	})
}

func (s *Server) getNotification(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	n, err := s.deps.Notifications.FindByID(ctx, c.Params("id"), identity)
	if err != nil {
		return s.fail(c, err, "get notification")
	}
	return c.JSON(n)
}

func (s *Server) markNotificationRead(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	n, err := s.deps.Notifications.MarkRead(ctx, c.Params("id"), identity)
	if err != nil {
		return s.fail(c, err, "mark notification read")
	}
	s.deps.Bridge.PushUnread(ctx, identity)
	return c.JSON(n)
}

func (s *Server) markAllNotificationsRead(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	updated, err := s.deps.Notifications.MarkAllRead(ctx, identity)
	if err != nil {
		return s.fail(c, err, "mark all notifications read")
	}
	s.deps.Hub.PushUnreadCount(identity, 0)
	return c.JSON(fiber.Map{"updated": updated})
}

func (s *Server) deleteNotification(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	if err := s.deps.Notifications.Delete(ctx, c.Params("id"), identity); err != nil {
		return s.fail(c, err, "delete notification")
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

func (s *Server) deleteReadNotifications(c *fiber.Ctx) error {
	identity := auth.IdentityFromCtx(c)
	ctx, cancel := reqContext()
	defer cancel()

	removed, err := s.deps.Notifications.DeleteRead(ctx, identity)
	if err != nil {
		return s.fail(c, err, "delete read notifications")
	}
	return c.JSON(fiber.Map{"deleted": removed})
}

// broadcastNotification persists an announcement for every active identity.
// Delivery is lazy: recipients see it on their next poll.
func (s *Server) broadcastNotification(c *fiber.Ctx) error {
	if auth.RoleFromCtx(c) != "admin" {
		return s.fail(c, apperr.ErrForbidden, "broadcast notification")
	}
	var body struct {
		Type     string `json:"type"`
		Title    string `json:"title"`
		Body     string `json:"body"`
		Metadata string `json:"metadata"`
	}
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, apperr.ErrMissingFields, "broadcast notification")
	}
	if body.Title == "" {
		return s.fail(c, apperr.ErrMissingFields, "broadcast notification")
	}
	if body.Type == "" {
		body.Type = "announcement"
	}
	ctx, cancel := reqContext()
	defer cancel()

	res, err := s.deps.Bridge.BroadcastToAll(ctx, body.Type, body.Title, body.Body, body.Metadata)
	if err != nil {
		return s.fail(c, err, "broadcast notification")
	}
	return c.JSON(res)
}

func (s *Server) streamStats(c *fiber.Ctx) error {
	return c.JSON(s.deps.Hub.Stats())
}
