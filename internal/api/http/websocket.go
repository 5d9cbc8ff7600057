package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/broadcast"
)

// wsSink writes broadcast events to one WebSocket connection. The hub calls
// Send from a single goroutine per subscription, so writes never interleave.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSink) Send(ev broadcast.Event) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteJSON(ev)
}

func registerWebSocket(app *fiber.App, hub *broadcast.Hub, logger *zap.Logger) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		sub, err := hub.Subscribe(context.Background(), &wsSink{conn: c, writeTimeout: 10 * time.Second})
		if err != nil {
			logger.Warn("websocket subscribe failed", zap.Error(err))
			return
		}
		log := logger.With(zap.String("subscriber", sub.ID()))
		log.Debug("websocket connected")

		// Unblock the read loop if the hub drops this subscriber first.
		stop := make(chan struct{})
		watcher := make(chan struct{})
		go func() {
			defer close(watcher)
			select {
			case <-sub.Done():
				_ = c.SetReadDeadline(time.Now())
			case <-stop:
			}
		}()

		// Inbound messages are ignored; reading only detects disconnects.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		close(stop)
		<-watcher
		hub.Unsubscribe(sub)
		<-sub.Done()
		log.Debug("websocket disconnected")
	}))
}
