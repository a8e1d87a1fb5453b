package relay

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	ws "timebank-chat/internal/websocket"
)

// HealthResponse 是 /healthz 的响应体。
type HealthResponse struct {
	Status         string `json:"status"`
	Connections    int    `json:"connections"`
	MaxConnections int    `json:"maxConnections"`
}

// HealthHandler reports liveness and the current connection count.
type HealthHandler struct {
	hub *ws.Hub
}

func NewHealthHandler(hub *ws.Hub) *HealthHandler {
	return &HealthHandler{hub: hub}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	select {
	case <-h.hub.Done():
		status, code = "stopping", http.StatusServiceUnavailable
	default:
	}
	writeJSONResponse(w, code, HealthResponse{
		Status:         status,
		Connections:    h.hub.Count(),
		MaxConnections: h.hub.MaxConnections(),
	})
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// 头部已经发送，只能记录日志
			log.Warn().Err(err).Msg("无法编码 JSON 响应")
		}
	}
}
