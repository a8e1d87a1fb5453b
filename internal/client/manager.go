package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"timebank-chat/internal/chattypes"
	"timebank-chat/internal/config"
	ws "timebank-chat/internal/websocket"
)

// DefaultReconnectDelay is used when the config carries no reconnect delay.
const DefaultReconnectDelay = 5 * time.Second

// ErrDisconnected is returned by Connect when Disconnect raced the dial.
var ErrDisconnected = errors.New("disconnected during connect")

// Handler receives every inbound envelope that decoded successfully.
type Handler interface {
	HandleEnvelope(env chattypes.Envelope)
}

// HandlerFunc adapts a function to Handler. Func handlers are never deduplicated.
type HandlerFunc func(env chattypes.Envelope)

func (f HandlerFunc) HandleEnvelope(env chattypes.Envelope) { f(env) }

// timer is the part of *time.Timer the reconnect loop needs.
type timer interface {
	Stop() bool
}

type handlerEntry struct {
	h Handler
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// Manager owns one logical connection to the relay. It reconnects after
// unexpected closes with a fixed delay, forever, until Disconnect is called.
type Manager struct {
	cfg    config.ClientConfig
	dialer *websocket.Dialer

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	intentional bool
	// session lives from an explicit Connect to the next Disconnect. Reconnect
	// timers and in-flight dials belonging to a cancelled session are stale.
	session       context.Context
	cancelSession context.CancelFunc
	reconnect     timer
	handlers      []*handlerEntry
	stateHandlers []func(StateEvent)

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	afterFunc func(d time.Duration, f func()) timer
}

// NewManager constructs a Manager in state idle. Nothing is dialled until Connect.
func NewManager(cfg config.ClientConfig, opts ...Option) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	m := &Manager{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		afterFunc: func(d time.Duration, f func()) timer { return time.AfterFunc(d, f) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers fn for every state transition.
func (m *Manager) OnStateChange(fn func(StateEvent)) {
	m.mu.Lock()
	m.stateHandlers = append(m.stateHandlers, fn)
	m.mu.Unlock()
}

// OnMessage registers h for inbound envelopes and returns a func removing it.
// Registering the same pointer handler twice is a no-op and returns the existing
// registration's remover. Non-pointer handlers are always added.
func (m *Manager) OnMessage(h Handler) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 只比较指针，值类型可能包含不可比较的字段
	if t := reflect.TypeOf(h); t != nil && t.Kind() == reflect.Pointer {
		for _, e := range m.handlers {
			if e.h == h {
				return m.remover(e)
			}
		}
	}
	entry := &handlerEntry{h: h}
	m.handlers = append(m.handlers, entry)
	return m.remover(entry)
}

func (m *Manager) remover(entry *handlerEntry) func() {
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, e := range m.handlers {
			if e == entry {
				m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
				return
			}
		}
	}
}

// Connect opens the transport. It is a no-op while connecting or open. A failed
// dial moves the manager to closed and schedules a reconnect; the error is
// returned for information only.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	m.intentional = false
	if m.session == nil || m.session.Err() != nil {
		m.session, m.cancelSession = context.WithCancel(context.Background())
	}
	sess := m.session
	m.mu.Unlock()

	return m.connect(ctx, sess)
}

func (m *Manager) connect(ctx context.Context, sess context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	if sess != m.session || sess.Err() != nil {
		m.mu.Unlock()
		return ErrDisconnected
	}
	ev := m.setStateLocked(StateConnecting, nil)
	m.mu.Unlock()
	m.emit(ev)

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess, cancel)
	defer stop()

	log.Debug().Str("url", m.cfg.URL).Msg("正在连接中继")
	conn, _, err := m.dialer.DialContext(dialCtx, m.cfg.URL, nil)

	m.mu.Lock()
	if sess != m.session || sess.Err() != nil {
		// Disconnect 在拨号期间被调用
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrDisconnected
	}
	if err != nil {
		ev := m.setStateLocked(StateClosed, err)
		m.scheduleReconnectLocked(sess)
		m.mu.Unlock()
		m.emit(ev)
		log.Warn().Err(err).Str("url", m.cfg.URL).Dur("retryIn", m.cfg.ReconnectDelay).Msg("连接中继失败")
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}
	m.watchLiveness(conn)
	m.conn = conn
	ev = m.setStateLocked(StateOpen, nil)
	m.mu.Unlock()
	m.emit(ev)

	log.Info().Str("url", m.cfg.URL).Msg("已连接中继")
	go m.readLoop(conn, sess)
	return nil
}

// Send writes env if the transport is open. Otherwise env is dropped and Send
// returns false; nothing is queued.
func (m *Manager) Send(env chattypes.Envelope) bool {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()
	if !open || conn == nil {
		log.Debug().Str("kind", string(env.Kind)).Msg("未连接，消息已丢弃")
		return false
	}

	frame, err := env.Encode()
	if err != nil {
		log.Warn().Err(err).Msg("无法序列化消息")
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.cfg.WriteWait > 0 {
		conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		// 关闭连接，由 readLoop 触发重连
		log.Warn().Err(err).Msg("写入失败")
		conn.Close()
		return false
	}
	return true
}

// Disconnect closes the transport and suppresses reconnects until Connect is
// called again. Safe to call in any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	if m.cancelSession != nil {
		m.cancelSession()
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	conn := m.conn
	m.conn = nil
	var ev *StateEvent
	if m.state == StateConnecting || m.state == StateOpen {
		ev = m.setStateLocked(StateClosed, nil)
	}
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Debug().Err(err).Msg("发送关闭帧失败")
		}
		conn.Close()
	}
	m.emit(ev)
	log.Info().Msg("已断开与中继的连接")
}

func (m *Manager) readLoop(conn *websocket.Conn, sess context.Context) {
	for {
		_, raw, err := ws.ReadFrame(conn, m.cfg.MaxMessageSize)
		if errors.Is(err, ws.ErrFrameTooLarge) {
			m.extendReadDeadline(conn)
			log.Warn().Int64("limit", m.cfg.MaxMessageSize).Msg("入站帧超过大小上限，已丢弃")
			continue
		}
		if err != nil {
			m.handleClose(conn, sess, err)
			return
		}
		m.extendReadDeadline(conn)
		env, err := chattypes.DecodeEnvelope(raw)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(raw)).Msg("无法解析入站帧，已丢弃")
			continue
		}
		m.dispatch(env)
	}
}

// watchLiveness arms the read deadline. The relay pings periodically, so a
// silent half-open connection surfaces as a read timeout and takes the
// reconnect path.
func (m *Manager) watchLiveness(conn *websocket.Conn) {
	if m.cfg.ReadTimeout <= 0 {
		return
	}
	m.extendReadDeadline(conn)
	conn.SetPingHandler(func(data string) error {
		m.extendReadDeadline(conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
}

func (m *Manager) extendReadDeadline(conn *websocket.Conn) {
	if m.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	}
}

func (m *Manager) dispatch(env chattypes.Envelope) {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	for i, e := range m.handlers {
		handlers[i] = e.h
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h.HandleEnvelope(env)
	}
}

func (m *Manager) handleClose(conn *websocket.Conn, sess context.Context, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// Disconnect 已经接管了这个连接
		m.mu.Unlock()
		return
	}
	m.conn = nil
	ev := m.setStateLocked(StateClosed, err)
	reconnect := !m.intentional && sess.Err() == nil
	if reconnect {
		m.scheduleReconnectLocked(sess)
	}
	m.mu.Unlock()

	conn.Close()
	m.emit(ev)
	if reconnect {
		log.Warn().Err(err).Dur("retryIn", m.cfg.ReconnectDelay).Msg("与中继的连接意外断开")
	}
}

func (m *Manager) scheduleReconnectLocked(sess context.Context) {
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	m.reconnect = m.afterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		if sess == m.session {
			m.reconnect = nil
		}
		m.mu.Unlock()
		// 错误已在 connect 中记录，失败会再次安排重连
		_ = m.connect(context.Background(), sess)
	})
}

func (m *Manager) setStateLocked(s State, err error) *StateEvent {
	if m.state == s {
		return nil
	}
	ev := &StateEvent{Old: m.state, New: s, Err: err, Intentional: m.intentional}
	m.state = s
	return ev
}

func (m *Manager) emit(ev *StateEvent) {
	if ev == nil {
		return
	}
	m.mu.Lock()
	fns := make([]func(StateEvent), len(m.stateHandlers))
	copy(fns, m.stateHandlers)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(*ev)
	}
}
