package coinsbit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"coinsbridge/internal/transport"
)

// FrameHandler consumes one raw push-channel frame of a given method.
type FrameHandler func(raw []byte) error

// WSClient speaks the exchange's push-channel wire protocol: subscribe
// and authorize requests, heartbeat frames, and method-based routing of
// inbound update frames. It parses no payloads; handlers receive the raw
// frame bytes.
type WSClient struct {
	client    *transport.WSClient
	logger    zerolog.Logger
	requestID atomic.Int64

	mu           sync.RWMutex
	depthHandler FrameHandler
	dealsHandler FrameHandler
}

// wsRequest is the client-to-server frame shape.
type wsRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// NewWSClient creates a push-channel client for the given domain.
func NewWSClient(domain string) *WSClient {
	return &WSClient{
		client: transport.NewWSClient(transport.WSConfig{
			URL:               wsURL(domain),
			ReconnectEnabled:  true,
			ReconnectBaseWait: 1 * time.Second,
			ReconnectMaxWait:  30 * time.Second,
			PingInterval:      WSHeartbeatInterval,
		}),
		logger: zerolog.Nop(),
	}
}

// SetLogger sets the logger for frame routing and transport events.
func (c *WSClient) SetLogger(logger zerolog.Logger) {
	c.logger = logger
	c.client.SetLogger(logger)
}

// OnReconnect registers a callback invoked after the transport re-dials,
// so the owner can re-authorize and resubscribe its topics.
func (c *WSClient) OnReconnect(fn func()) {
	c.client.OnReconnect(fn)
}

// Connect dials the push channel and installs the frame router.
func (c *WSClient) Connect(ctx context.Context) error {
	if err := c.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := c.client.Subscribe("_router", c.routeFrame); err != nil {
		return fmt.Errorf("register router: %w", err)
	}
	return nil
}

// Close tears the connection down.
func (c *WSClient) Close() error {
	return c.client.Close()
}

// IsConnected reports whether the channel is up.
func (c *WSClient) IsConnected() bool {
	return c.client.IsConnected()
}

// SetDepthHandler installs the consumer for depth.update frames.
func (c *WSClient) SetDepthHandler(h FrameHandler) {
	c.mu.Lock()
	c.depthHandler = h
	c.mu.Unlock()
}

// SetDealsHandler installs the consumer for deals.update frames.
func (c *WSClient) SetDealsHandler(h FrameHandler) {
	c.mu.Lock()
	c.dealsHandler = h
	c.mu.Unlock()
}

// Authorize sends the push-channel authorization request. Required before
// any private topic; public market-data topics work without it.
func (c *WSClient) Authorize(token string) error {
	if token == "" {
		return fmt.Errorf("websocket token is empty")
	}
	return c.send(AuthorizeMethod, []any{token, "auth_api"})
}

// SubscribeDepth subscribes to order-book diffs for a native market.
func (c *WSClient) SubscribeDepth(market string) error {
	return c.send(DepthSubscribeMethod, []any{market, DefaultDepthLimit, "0"})
}

// SubscribeDeals subscribes to public trades for a native market.
func (c *WSClient) SubscribeDeals(market string) error {
	return c.send(DealsSubscribeMethod, []any{market})
}

// Heartbeat sends one application-level ping frame.
func (c *WSClient) Heartbeat() error {
	return c.send("ping", []any{})
}

func (c *WSClient) send(method string, params []any) error {
	return c.client.SendJSON(wsRequest{
		ID:     c.requestID.Add(1),
		Method: method,
		Params: params,
	})
}

// routeFrame dispatches an inbound frame by its method discriminator.
// Frames without a method are request replies (subscribe acks, pongs) and
// are only logged.
func (c *WSClient) routeFrame(raw []byte) error {
	var env struct {
		Method string `json:"method"`
	}
	if err := sonic.Unmarshal(raw, &env); err != nil {
		c.logger.Debug().Err(err).Msg("unparsable frame")
		return nil
	}

	c.mu.RLock()
	depth, deals := c.depthHandler, c.dealsHandler
	c.mu.RUnlock()

	switch env.Method {
	case DepthUpdateMethod:
		if depth != nil {
			return depth(raw)
		}
	case DealsUpdateMethod:
		if deals != nil {
			return deals(raw)
		}
	case "":
		c.logger.Debug().Msg("request reply")
	default:
		c.logger.Debug().Str("method", env.Method).Msg("unhandled frame method")
	}
	return nil
}
