package relay

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"timebank-chat/internal/config"
	ws "timebank-chat/internal/websocket"
)

// NewRouter builds the relay HTTP surface: the websocket endpoint, /healthz and
// /metrics, wrapped in CORS, panic recovery and access logging.
func NewRouter(cfg config.ServerConfig, hub *ws.Hub, gatherer prometheus.Gatherer) http.Handler {
	wsHandler := NewWebSocketHandler(hub, cfg)

	r := mux.NewRouter()
	wsPath := cfg.WebSocketPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.HandleFunc(wsPath, wsHandler.ServeWS).Methods(http.MethodGet)
	r.Handle("/healthz", NewHealthHandler(hub)).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// CORS 只影响普通 HTTP 路由；WebSocket 的 Origin 由 Upgrader 校验
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.CORS.AllowedHeaders),
		handlers.MaxAge(cfg.CORS.MaxAge),
	}

	accessLog := log.With().Str("component", "http").Logger()
	var h http.Handler = handlers.CORS(corsOptions...)(r)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}), handlers.PrintRecoveryStack(false))(h)
	h = handlers.CombinedLoggingHandler(accessLog, h)
	return h
}

// recoveryLogger routes gorilla/handlers recovery output into zerolog.
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	log.Error().Interface("panic", v).Msg("HTTP 处理器发生 panic")
}
