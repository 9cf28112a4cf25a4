package exchange

import (
	"context"
	"time"

	"github.com/cockroachdb/apd/v3"

	"coinsbridge/pkg/core"
)

// Connector is the synchronous surface a host trading engine drives. It
// covers market data fetches, the balance-reconciliation source, and
// order placement/cancellation; streaming market data is delivered
// separately through the session's event channel.
type Connector interface {
	Name() string
	Domain() string

	GetMarkets(ctx context.Context) ([]core.Market, error)
	RefreshSymbols(ctx context.Context) (int, error)

	GetTicker(ctx context.Context, pair core.TradingPair) (*core.Ticker, error)
	GetLastPrice(ctx context.Context, pair core.TradingPair) (apd.Decimal, error)
	GetAllLastPrices(ctx context.Context) (map[core.TradingPair]apd.Decimal, error)
	GetOrderBookSnapshot(ctx context.Context, pair core.TradingPair, opts ...Option) (*core.BookEvent, error)

	GetBalances(ctx context.Context) (core.BalanceSnapshot, error)

	PlaceOrder(ctx context.Context, req *core.OrderRequest, opts ...Option) (*OrderAck, error)
	CancelOrder(ctx context.Context, req *CancelRequest, opts ...Option) (bool, error)
	GetOrderFills(ctx context.Context, query *FillQuery, opts ...Option) ([]core.Fill, error)
}

// OrderAck is the exchange's acknowledgement of a newly placed order.
type OrderAck struct {
	ExchangeOrderID string
	TransactTime    time.Time
}

// CancelRequest contains the parameters required to cancel an existing order.
type CancelRequest struct {
	Pair            core.TradingPair
	ExchangeOrderID string
}

// FillQuery selects the trade history of one order.
type FillQuery struct {
	ClientOrderID   string
	ExchangeOrderID string
}
