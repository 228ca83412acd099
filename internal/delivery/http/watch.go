package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentimentiq/backend/internal/domain"
)

const (
	watchBuffer    = 64
	watchWriteWait = 10 * time.Second
	watchPingEvery = 30 * time.Second
)

// changeEvent is the wire form of a storage change. A missing side is null.
type changeEvent struct {
	Area     string          `json:"area"`
	Key      string          `json:"key"`
	OldValue json.RawMessage `json:"oldValue"`
	NewValue json.RawMessage `json:"newValue"`
}

func newChangeEvent(c domain.StorageChange) changeEvent {
	ev := changeEvent{Area: c.Area, Key: c.Key, OldValue: c.OldValue, NewValue: c.NewValue}
	if ev.OldValue == nil {
		ev.OldValue = json.RawMessage("null")
	}
	if ev.NewValue == nil {
		ev.NewValue = json.RawMessage("null")
	}
	return ev
}

// WatchStorage streams storage changes over a websocket until the client goes
// away. A client that falls too far behind is disconnected and should re-read.
func (h *Handler) WatchStorage(upgrader *websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		changes := make(chan domain.StorageChange, watchBuffer)
		overflow := make(chan struct{})
		var once sync.Once
		unsubscribe := h.deps.Storage.Subscribe(func(change domain.StorageChange) {
			select {
			case changes <- change:
			default:
				once.Do(func() { close(overflow) })
			}
		})
		defer unsubscribe()

		// The read loop only notices the client closing.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(watchPingEvery)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case <-c.Request.Context().Done():
				return
			case <-overflow:
				h.logger.Warn("storage watcher too slow, disconnecting")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
					time.Now().Add(watchWriteWait))
				return
			case change := <-changes:
				_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
				if err := conn.WriteJSON(newChangeEvent(change)); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
					return
				}
			}
		}
	}
}

// newUpgrader accepts websocket handshakes from the allowed origins.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || isAllowedOrigin(origin, allowedOrigins)
		},
	}
}
