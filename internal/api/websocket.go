package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/search"
	"gbfs-sync/internal/subscription"
)

const (
	filterWait   = 10 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeError：过滤条件无效时回写给客户端后关闭连接
type subscribeError struct {
	Error string `json:"error"`
}

// serveSubscription：升级为 websocket；首条消息为过滤条件，之后服务端持续推送批次
// 约束：读协程只负责发现断开与处理 pong；全部写操作在处理协程内完成
func serveSubscription[T model.LocationEntity](h *subscription.Handler[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logger.Named("api").With("entity", h.Kind())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			l.Warn("ws_upgrade_error", "err", err)
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(filterWait))
		var f search.Filter
		if err := conn.ReadJSON(&f); err != nil {
			l.Debug("ws_filter_read_error", "err", err)
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sub, err := h.Subscribe(ctx, f)
		if err != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(subscribeError{Error: err.Error()})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid filter"), time.Now().Add(writeWait))
			return
		}
		defer sub.Unsubscribe()
		l.Info("ws_subscribed", "id", sub.ID(), "remote", r.RemoteAddr)

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case batch, ok := <-sub.Batches():
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(batch); err != nil {
					l.Debug("ws_write_error", "id", sub.ID(), "err", err)
					return
				}
			}
		}
	}
}
