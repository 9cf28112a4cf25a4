package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// MessageHandler processes a single raw frame received from the socket.
type MessageHandler func(data []byte) error

// WSConfig holds connection parameters for a WSClient.
type WSConfig struct {
	URL               string
	ReconnectEnabled  bool
	ReconnectMaxWait  time.Duration
	ReconnectBaseWait time.Duration
	PingInterval      time.Duration
	PongWait          time.Duration
}

// WSClient is a reconnecting WebSocket client built on gws. Inbound frames
// are fanned out to registered handlers; reconnection uses exponential
// backoff and is the transport's responsibility, not the caller's.
type WSClient struct {
	config  WSConfig
	state   *connState
	conn    *gws.Conn
	handler *wsEventHandler
	logger  zerolog.Logger

	mu                sync.RWMutex
	handlers          map[string]MessageHandler
	onReconnect       func()
	connectedChan     chan struct{}
	stopChan          chan struct{}
	wg                sync.WaitGroup
	reconnectAttempts int
}

type wsEventHandler struct {
	client *WSClient
}

// NewWSClient creates a WSClient with the given configuration, applying
// defaults for any zero-valued timing fields.
func NewWSClient(config WSConfig) *WSClient {
	if config.ReconnectBaseWait == 0 {
		config.ReconnectBaseWait = 1 * time.Second
	}
	if config.ReconnectMaxWait == 0 {
		config.ReconnectMaxWait = 30 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.PongWait == 0 {
		config.PongWait = 20 * time.Second
	}

	client := &WSClient{
		config:        config,
		state:         &connState{},
		handlers:      make(map[string]MessageHandler),
		connectedChan: make(chan struct{}),
		stopChan:      make(chan struct{}),
		logger:        zerolog.Nop(),
	}
	client.state.Store(StateDisconnected)
	client.handler = &wsEventHandler{client: client}
	return client
}

// SetLogger sets the logger used for connection lifecycle events.
func (c *WSClient) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// OnReconnect registers a callback invoked after a successful reconnect,
// so the session layer can replay its subscriptions.
func (c *WSClient) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

func (h *wsEventHandler) OnOpen(socket *gws.Conn) {
	h.client.state.Store(StateConnected)

	h.client.mu.Lock()
	reconnected := h.client.reconnectAttempts > 0
	h.client.reconnectAttempts = 0
	select {
	case <-h.client.connectedChan:
	default:
		close(h.client.connectedChan)
	}
	onReconnect := h.client.onReconnect
	h.client.mu.Unlock()

	h.client.logger.Info().
		Str("url", h.client.config.URL).
		Msg("websocket connected")

	h.bumpDeadline(socket)

	if reconnected && onReconnect != nil {
		go onReconnect()
	}
}

// bumpDeadline pushes the read deadline out by one ping/pong cycle.
func (h *wsEventHandler) bumpDeadline(socket *gws.Conn) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.PingInterval + h.client.config.PongWait))
}

func (h *wsEventHandler) OnClose(socket *gws.Conn, err error) {
	h.client.state.Store(StateDisconnected)

	h.client.mu.Lock()
	h.client.connectedChan = make(chan struct{})
	h.client.mu.Unlock()

	h.client.logger.Warn().
		Err(err).
		Str("url", h.client.config.URL).
		Msg("websocket disconnected")

	if h.client.config.ReconnectEnabled {
		select {
		case <-h.client.stopChan:
			return
		default:
			go h.client.reconnectLoop()
		}
	}
}

func (h *wsEventHandler) OnPing(socket *gws.Conn, payload []byte) {
	h.bumpDeadline(socket)
	_ = socket.WritePong(nil)
}

func (h *wsEventHandler) OnPong(socket *gws.Conn, payload []byte) {
	h.bumpDeadline(socket)
}

func (h *wsEventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	data := message.Bytes()
	if len(data) == 0 {
		return
	}

	h.client.mu.RLock()
	handlers := make([]MessageHandler, 0, len(h.client.handlers))
	for _, handler := range h.client.handlers {
		handlers = append(handlers, handler)
	}
	h.client.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(data); err != nil {
			h.client.logger.Debug().Err(err).Msg("handler rejected message")
		}
	}
}

// Connect establishes the connection and starts the read loop. It returns
// once the socket is open, the context is done, or the client is stopped.
func (c *WSClient) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) {
		current := c.state.Load()
		if current == StateConnected {
			return nil
		}
		if current != StateReconnecting {
			return fmt.Errorf("invalid state for connect: %s", current)
		}
	}

	socket, _, err := gws.NewClient(c.handler, &gws.ClientOption{
		Addr: c.config.URL,
	})
	if err != nil {
		c.state.Store(StateDisconnected)
		return fmt.Errorf("connect websocket: %w", err)
	}

	c.mu.Lock()
	c.conn = socket
	connected := c.connectedChan
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		socket.ReadLoop()
	}()

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		_ = socket.NetConn().Close()
		c.state.Store(StateDisconnected)
		return ctx.Err()
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		c.state.Store(StateClosed)
		return fmt.Errorf("client stopped")
	}
}

// Close shuts the client down permanently and releases all handlers.
func (c *WSClient) Close() error {
	if !c.state.CompareAndSwap(StateConnected, StateClosed) &&
		!c.state.CompareAndSwap(StateConnecting, StateClosed) &&
		!c.state.CompareAndSwap(StateReconnecting, StateClosed) &&
		!c.state.CompareAndSwap(StateDisconnected, StateClosed) {
		return nil
	}

	close(c.stopChan)

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.NetConn().Close()
	}
	c.handlers = make(map[string]MessageHandler)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// State returns the current connection state.
func (c *WSClient) State() ConnState {
	return c.state.Load()
}

// IsConnected returns true while the socket is open.
func (c *WSClient) IsConnected() bool {
	return c.state.Load() == StateConnected
}

// Subscribe registers a named handler for inbound frames. Every handler
// sees every frame; routing by payload content is the handler's job.
func (c *WSClient) Subscribe(name string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	c.mu.Lock()
	c.handlers[name] = handler
	c.mu.Unlock()

	c.logger.Debug().Str("handler", name).Msg("registered message handler")
	return nil
}

// Unsubscribe removes a named handler.
func (c *WSClient) Unsubscribe(name string) error {
	c.mu.Lock()
	delete(c.handlers, name)
	c.mu.Unlock()

	c.logger.Debug().Str("handler", name).Msg("removed message handler")
	return nil
}

// Subscriptions returns the names of all registered handlers.
func (c *WSClient) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		subs = append(subs, name)
	}
	return subs
}

// WriteMessage sends a text frame over the socket.
func (c *WSClient) WriteMessage(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.state.Load() != StateConnected {
		return fmt.Errorf("websocket not connected")
	}

	return c.conn.WriteMessage(gws.OpcodeText, data)
}

// SendJSON marshals v with sonic and sends it as a text frame.
func (c *WSClient) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.WriteMessage(data)
}

// SendPing sends a ping control frame.
func (c *WSClient) SendPing() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.state.Load() != StateConnected {
		return fmt.Errorf("websocket not connected")
	}

	return c.conn.WritePing(nil)
}

func (c *WSClient) reconnectLoop() {
	if !c.state.CompareAndSwap(StateDisconnected, StateReconnecting) {
		return
	}

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.Lock()
		attempts := c.reconnectAttempts
		c.reconnectAttempts++
		c.mu.Unlock()

		wait := c.backoffWait(attempts)
		c.logger.Info().
			Dur("wait", wait).
			Int("attempt", attempts+1).
			Msg("attempting reconnect")

		select {
		case <-time.After(wait):
		case <-c.stopChan:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.Connect(ctx); err != nil {
			c.logger.Error().Err(err).
				Int("attempt", attempts+1).
				Msg("reconnect failed")
			cancel()
			c.state.Store(StateReconnecting)
			continue
		}
		cancel()

		c.logger.Info().Msg("reconnected")
		return
	}
}

func (c *WSClient) backoffWait(attempts int) time.Duration {
	return min(c.config.ReconnectBaseWait*time.Duration(1<<uint(attempts)), c.config.ReconnectMaxWait)
}
