package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"timebank-chat/internal/chattypes"
	"timebank-chat/internal/metrics"
)

const defaultSendBuffer = 256

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub.
	send chan []byte

	// ID only tags log lines; the relay keeps no identity per connection.
	ID string

	// Inbound frame limiter, nil when unlimited.
	limiter *rate.Limiter

	// Close frame written by writePump once send is closed. Set by the hub
	// before it closes send.
	closeCode int
	closeText string
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	size := hub.wsCfg.SendBufferSize
	if size <= 0 {
		size = defaultSendBuffer
	}
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, size),
		ID:        uuid.NewString(),
		closeCode: websocket.CloseNormalClosure,
	}
	if r := hub.relayCfg.FrameRate; r > 0 {
		burst := hub.relayCfg.FrameBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	return c
}

// closeWith records the close frame and closes send. Only the hub calls it.
func (c *Client) closeWith(code int, text string) {
	c.closeCode = code
	c.closeText = text
	close(c.send)
}

// readPump pumps frames from the websocket connection into the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	wsCfg := c.hub.wsCfg
	c.conn.SetReadDeadline(time.Now().Add(wsCfg.PongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsCfg.PongWait()))
		return nil
	})

	for {
		messageType, raw, err := ReadFrame(c.conn, int64(wsCfg.MaxMessageSizeBytes))
		if errors.Is(err, ErrFrameTooLarge) {
			// 超长帧整帧丢弃，连接保持打开
			log.Warn().Str("conn", c.ID).Int("limit", wsCfg.MaxMessageSizeBytes).Msg("入站帧超过大小上限，已丢弃")
			c.hub.metrics.Frame(metrics.FrameOversized)
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn", c.ID).Msg("WebSocket 连接异常关闭")
			} else {
				log.Debug().Err(err).Str("conn", c.ID).Msg("WebSocket 连接已关闭")
			}
			return
		}

		if messageType != websocket.TextMessage {
			log.Warn().Str("conn", c.ID).Int("type", messageType).Msg("收到非文本帧，已忽略")
			c.hub.metrics.Frame(metrics.FrameBinary)
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			log.Warn().Str("conn", c.ID).Msg("入站帧速率超限，已丢弃")
			c.hub.metrics.Frame(metrics.FrameRateLimited)
			continue
		}

		frame, result, err := relayFrame(raw)
		c.hub.metrics.Frame(result)
		if err != nil {
			// 解析失败只记录日志，不通知发送方
			log.Warn().Err(err).Str("conn", c.ID).Int("bytes", len(raw)).Msg("无法解析入站帧，已丢弃")
			continue
		}
		if frame == nil {
			continue
		}
		if !c.hub.Broadcast(frame) {
			return
		}
	}
}

// relayFrame decodes one inbound frame and returns the frame to broadcast, if any,
// with the metrics result label.
func relayFrame(raw []byte) ([]byte, string, error) {
	env, err := chattypes.DecodeRelayEnvelope(raw)
	if err != nil {
		return nil, metrics.FrameMalformed, err
	}

	switch env.Kind {
	case chattypes.KindMessage:
		// 字段原样转发，不做类型校验
		out, err := env.MessageFrame()
		if err != nil {
			return nil, metrics.FrameMalformed, err
		}
		return out, metrics.FrameBroadcast, nil
	case chattypes.KindReaction:
		// reaction 在数据模型中存在，但中继暂不转发
		log.Debug().Msg("收到 reaction，中继不转发")
		return nil, metrics.FrameIgnored, nil
	default:
		log.Debug().Str("kind", string(env.Kind)).Msg("收到未知类型的帧，已忽略")
		return nil, metrics.FrameIgnored, nil
	}
}

// writePump pumps frames from the hub to the websocket connection.
// One frame per websocket message: receivers parse every frame as one envelope.
func (c *Client) writePump() {
	wsCfg := c.hub.wsCfg
	ticker := time.NewTicker(wsCfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsCfg.WriteWait()))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeText))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("conn", c.ID).Msg("写入失败，关闭连接")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsCfg.WriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and hands the connection to hub. checkOrigin may
// be nil to accept every origin.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, checkOrigin func(*http.Request) bool) {
	if hub.Full() {
		hub.metrics.Rejected()
		log.Warn().Str("remote", r.RemoteAddr).Msg("连接数已达上限，拒绝升级")
		http.Error(w, "relay is full", http.StatusServiceUnavailable)
		return
	}

	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket 升级失败")
		return
	}

	client := newClient(hub, conn)
	if !hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutdown"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	log.Info().Str("conn", client.ID).Str("remote", r.RemoteAddr).Msg("客户端已连接")
}
