package sse

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/dinhduclinh/sever-retrotrade/internal/auth"
)

// StreamHandler serves the long-lived notification stream. The identity must
// already be in Locals (the auth middleware accepts header or query tokens,
// since EventSource cannot set custom headers). Each frame is one serialized
// envelope; periodic comment frames keep intermediaries from timing out the
// response and double as client-loss detection.
func StreamHandler(hub *Hub, keepalive time.Duration, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := auth.IdentityFromCtx(c)
		if identity == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			sub := hub.Subscribe(identity)
			defer hub.Unsubscribe(identity, sub)

			fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			ticker := time.NewTicker(keepalive)
			defer ticker.Stop()

			for {
				select {
				case frame, ok := <-sub.C():
					if !ok {
						return
					}
					fmt.Fprintf(w, "data: %s\n\n", frame)
					if err := w.Flush(); err != nil {
						log.Debugw("sse client gone", "identity", identity)
						return
					}
				case <-ticker.C:
					fmt.Fprint(w, ": ping\n\n")
					if err := w.Flush(); err != nil {
						log.Debugw("sse client gone on keepalive", "identity", identity)
						return
					}
				}
			}
		}))
		return nil
	}
}
