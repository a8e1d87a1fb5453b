package websocket

import (
	"context"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"timebank-chat/internal/config"
	"timebank-chat/internal/metrics"
)

// Hub maintains the set of open connections and broadcasts frames to them.
// All mutation and iteration of the set happens on the Run goroutine, so
// register, unregister and broadcast never race.
type Hub struct {
	// Open connections. Membership is the only state kept per connection.
	clients map[*Client]struct{}

	// Relay-encoded frames to fan out to every open connection.
	broadcast chan []byte

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	wsCfg    config.WebSocketConfig
	relayCfg config.RelayConfig
	metrics  *metrics.Relay

	// 当前连接数，由 Run 维护，供 HTTP 层在升级前做容量预检
	count atomic.Int64
}

// NewHub creates a new Hub. m may be nil.
func NewHub(wsCfg config.WebSocketConfig, relayCfg config.RelayConfig, m *metrics.Relay) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		wsCfg:      wsCfg,
		relayCfg:   relayCfg,
		metrics:    m,
	}
}

// Run owns the connection set until ctx is cancelled. On cancellation every
// open connection gets a going-away close frame and the set is emptied.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	log.Info().Int("maxConnections", h.relayCfg.MaxConnections).Msg("WebSocket Hub 已启动")

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.closeWith(websocket.CloseGoingAway, "relay shutdown")
				delete(h.clients, client)
			}
			h.setCount()
			log.Info().Msg("WebSocket Hub 已停止，所有连接已关闭")
			return

		case client := <-h.register:
			if h.full() {
				log.Warn().Str("conn", client.ID).Int("connections", len(h.clients)).Msg("连接数已达上限，拒绝新连接")
				h.metrics.Rejected()
				client.closeWith(websocket.CloseTryAgainLater, "relay full")
				continue
			}
			h.clients[client] = struct{}{}
			h.setCount()
			log.Debug().Str("conn", client.ID).Int("connections", len(h.clients)).Msg("客户端已注册")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setCount()
				log.Debug().Str("conn", client.ID).Int("connections", len(h.clients)).Msg("客户端已注销")
			}

		case frame := <-h.broadcast:
			// 包括发送者本身；不可写的连接跳过本帧，不影响其他连接
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					log.Warn().Str("conn", client.ID).Msg("发送缓冲已满，跳过本次广播")
					h.metrics.Dropped()
				}
			}
		}
	}
}

// Register adds client to the open set. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client from the open set. Unknown clients are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues frame for delivery to every open connection.
func (h *Hub) Broadcast(frame []byte) bool {
	select {
	case h.broadcast <- frame:
		return true
	case <-h.done:
		return false
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Full reports whether the configured connection bound has been reached.
func (h *Hub) Full() bool {
	max := h.relayCfg.MaxConnections
	return max > 0 && h.Count() >= max
}

// MaxConnections returns the configured bound, 0 meaning unbounded.
func (h *Hub) MaxConnections() int {
	return h.relayCfg.MaxConnections
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) full() bool {
	max := h.relayCfg.MaxConnections
	return max > 0 && len(h.clients) >= max
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	h.metrics.SetConnections(len(h.clients))
}
