package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/portfoliocms/assetsync/internal/infra/changefeed"
	"github.com/portfoliocms/assetsync/internal/modules/serializer"
	"go.uber.org/zap"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 30 * time.Second
)

// FeedHandler relays asset change events to websocket clients.
type FeedHandler struct {
	sub      changefeed.Subscriber
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewFeedHandler(sub changefeed.Subscriber, log *zap.Logger) *FeedHandler {
	return &FeedHandler{
		sub: sub,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe godoc
//
//	@Summary		Asset change feed
//	@Description	Websocket stream of INSERT, UPDATE and DELETE events on assets, one JSON event per message
//	@Tags			asset
//	@Router			/assets/feed [get]
func (h *FeedHandler) Subscribe(c *gin.Context) {
	// The subscription outlives the request context once the connection is hijacked.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	s, err := h.sub.Subscribe(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, serializer.Err(http.StatusServiceUnavailable, "change feed unavailable", err))
		return
	}
	defer s.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	go h.readLoop(conn, cancel)

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"), time.Now().Add(feedWriteWait))
				return
			}
			msg, err := sonic.Marshal(ev)
			if err != nil {
				h.log.Warn("encode change event", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed,
// and ends the relay when the client goes away.
func (h *FeedHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	}
}
