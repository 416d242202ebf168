package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/auth"
	"github.com/dinhduclinh/sever-retrotrade/internal/notify"
	"github.com/dinhduclinh/sever-retrotrade/internal/sse"
	"github.com/dinhduclinh/sever-retrotrade/internal/store"
	"github.com/dinhduclinh/sever-retrotrade/internal/ws"
)

// Deps carries everything the REST and realtime surfaces need.
type Deps struct {
	Auth          *auth.Authenticator
	Conversations store.ConversationStore
	Messages      store.MessageStore
	Notifications store.NotificationStore
	Users         store.UserStore
	Chat          *ws.ChatHandler
	Hub           *sse.Hub
	Bridge        *notify.Bridge

	WSOptions    ws.Options
	SSEKeepalive time.Duration
	Log          *zap.SugaredLogger
}

type Server struct {
	app  *fiber.App
	deps Deps
	log  *zap.SugaredLogger
}

func NewServer(deps Deps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{app: app, deps: deps, log: deps.Log}
	s.routes()
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// handshake auth runs before the protocol upgrade
	s.app.Use("/ws", ws.UpgradeMiddleware(s.deps.Auth))
	s.app.Get("/ws", websocket.New(ws.Handler(s.deps.Chat, s.deps.WSOptions, s.log)))

	api := s.app.Group("/api", auth.Middleware(s.deps.Auth))

	msgs := api.Group("/messages")
	msgs.Post("/send", s.sendMessage)
	msgs.Post("/send-media", s.sendMediaMessage)
	msgs.Get("/conversations", s.listConversations)
	msgs.Post("/conversations", s.createConversation)
	msgs.Get("/conversations/:conversationId", s.getConversation)
	msgs.Put("/conversations/:conversationId/mark-read", s.markConversationRead)
	msgs.Put("/message/:messageId", s.editMessage)
	msgs.Delete("/message/:messageId", s.deleteMessage)
	msgs.Get("/:conversationId", s.listMessages)

	n := api.Group("/notifications")
	// static segments before the :id wildcard
	n.Get("/stream/stats", s.streamStats)
	n.Get("/stream", sse.StreamHandler(s.deps.Hub, s.deps.SSEKeepalive, s.log))
	n.Put("/read-all", s.markAllNotificationsRead)
	n.Delete("/read/all", s.deleteReadNotifications)
	n.Post("/broadcast", s.broadcastNotification)
	n.Get("/", s.listNotifications)
	n.Get("/:id", s.getNotification)
	n.Put("/:id/read", s.markNotificationRead)
	n.Delete("/:id", s.deleteNotification)
}

// fail maps an error to its HTTP status. Anything outside the sentinel
// taxonomy is logged with detail and surfaced as a generic 500.
func (s *Server) fail(c *fiber.Ctx, err error, op string) error {
	switch {
	case errors.Is(err, apperr.ErrMissingFields):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "missing required fields"})
	case errors.Is(err, apperr.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	case errors.Is(err, apperr.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "forbidden"})
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "not found"})
	}
	s.log.Errorw(op+" failed", "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "internal server error"})
}
