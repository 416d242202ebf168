package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dinhduclinh/sever-retrotrade/internal/api"
	"github.com/dinhduclinh/sever-retrotrade/internal/auth"
	"github.com/dinhduclinh/sever-retrotrade/internal/config"
	"github.com/dinhduclinh/sever-retrotrade/internal/logger"
	"github.com/dinhduclinh/sever-retrotrade/internal/notify"
	"github.com/dinhduclinh/sever-retrotrade/internal/presence"
	"github.com/dinhduclinh/sever-retrotrade/internal/sse"
	"github.com/dinhduclinh/sever-retrotrade/internal/store"
	"github.com/dinhduclinh/sever-retrotrade/internal/ws"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.Development())
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := store.Connect(ctx, cfg.Mongo.URI)
	cancel()
	if err != nil {
		zlog.Fatalw("mongo connect failed", "err", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(cfg.Mongo.Database)
	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	err = store.EnsureIndexes(ctx, db)
	cancel()
	if err != nil {
		zlog.Fatalw("index setup failed", "err", err)
	}

	users := store.NewUserStore(db)
	convs := store.NewConversationStore(db)
	msgs := store.NewMessageStore(db, users)
	notifications := store.NewNotificationStore(db)

	authn := auth.New(cfg.JWT.Secret)
	registry := presence.NewRegistry()
	rooms := ws.NewRooms(convs, zlog)
	chat := ws.NewChatHandler(rooms, registry, convs, msgs, zlog)
	hub := sse.NewHub(cfg.SSE.Buffer, zlog)
	bridge := notify.NewBridge(notifications, users, hub, zlog)

	server := api.NewServer(api.Deps{
		Auth:          authn,
		Conversations: convs,
		Messages:      msgs,
		Notifications: notifications,
		Users:         users,
		Chat:          chat,
		Hub:           hub,
		Bridge:        bridge,
		WSOptions: ws.Options{
			PingInterval:    cfg.WS.PingInterval,
			WriteDeadline:   cfg.WS.WriteDeadline,
			MaxMessageSize:  cfg.WS.MaxMessageSize,
			RateLimitPerSec: cfg.WS.RateLimitPerSec,
			SendBuffer:      cfg.WS.SendBuffer,
		},
		SSEKeepalive: cfg.SSE.Keepalive,
		Log:          zlog,
	})

	go func() {
		if err := server.Listen(cfg.App.Port); err != nil {
			zlog.Fatalw("server listen failed", "err", err)
		}
	}()
	zlog.Infow("realtime service started", "port", cfg.App.Port, "env", cfg.App.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	if err := server.Shutdown(); err != nil {
		zlog.Errorw("shutdown failed", "err", err)
	}
	zlog.Infow("realtime service stopped")
}
