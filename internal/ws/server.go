package ws

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dinhduclinh/sever-retrotrade/internal/auth"
)

// Options carries the transport tunables for socket connections.
type Options struct {
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	MaxMessageSize  int64
	RateLimitPerSec int
	SendBuffer      int
}

// UpgradeMiddleware authenticates the handshake before the protocol upgrade:
// a missing or invalid credential refuses the connection outright. Tokens are
// accepted from the Authorization header or a token query param, matching the
// REST surface.
func UpgradeMiddleware(a *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		claims, err := a.Authenticate(c.Get("Authorization"), c.Query("token"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "authentication error"})
		}
		c.Locals(auth.LocalsIdentity, claims.Identity())
		return c.Next()
	}
}

// Handler runs one socket session: register, pump frames through the chat
// dispatcher, tear down on close.
func Handler(h *ChatHandler, opts Options, log *zap.SugaredLogger) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		identity, _ := conn.Locals(auth.LocalsIdentity).(string)
		if identity == "" {
			_ = conn.Close()
			return
		}

		client := NewClient(conn, identity, opts.SendBuffer, opts.RateLimitPerSec)
		h.Connected(client)
		defer h.Disconnected(client)

		go client.writePump(opts.PingInterval, opts.WriteDeadline)

		conn.SetReadLimit(opts.MaxMessageSize)
		for {
			mt, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			if !client.limiter.Allow() {
				log.Warnw("socket rate limited", "identity", identity)
				continue
			}
			h.Handle(context.Background(), client, raw)
		}
	}
}
