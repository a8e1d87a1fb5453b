package relay

import (
	"net/http"

	"timebank-chat/internal/config"
	ws "timebank-chat/internal/websocket"
)

// WebSocketHandler 负责处理 WebSocket 连接请求。
// 中继不做连接级认证，身份由发送方在消息中自行声明。
type WebSocketHandler struct {
	hub         *ws.Hub
	checkOrigin func(*http.Request) bool
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, cfg config.ServerConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		checkOrigin: OriginChecker(cfg.AllowedOrigins),
	}
}

// ServeWS 将 HTTP 连接升级为 WebSocket 连接，并交给 Hub 管理。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws.ServeWs(h.hub, w, r, h.checkOrigin)
}

// OriginChecker builds an Upgrader.CheckOrigin from an allow list. An empty
// list or "*" accepts every origin; requests without an Origin header (non-browser
// clients) are always accepted.
func OriginChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
