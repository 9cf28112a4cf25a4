package coinsbit

import "time"

// Exchange identity and endpoints. The domain placeholder selects the
// deployment TLD (coinsbit.io by default).
const (
	ExchangeName  = "coinsbit"
	DefaultDomain = "io"

	restURLFormat = "https://coinsbit.%s/api/v1"
	wssURLFormat  = "wss://coinsbit.%s/trade_ws"
)

// Private REST paths.
const (
	AccountBalancesPath = "/account/balances"
	AccountTradesPath   = "/account/trades"
	CreateOrderPath     = "/order/new"
	CancelOrderPath     = "/order/cancel"
)

// Public REST paths.
const (
	MarketsPath = "/public/markets"
	TickerPath  = "/public/ticker"
	TickersPath = "/public/tickers"
	DepthPath   = "/public/depth/result"
)

// Push-channel protocol constants. The heartbeat interval is fixed by the
// exchange; event methods discriminate frame routing.
const (
	WSHeartbeatInterval = 30 * time.Second

	DepthUpdateMethod = "depth.update"
	DealsUpdateMethod = "deals.update"

	DepthSubscribeMethod = "depth.subscribe"
	DealsSubscribeMethod = "deals.subscribe"
	AuthorizeMethod      = "authorize"
)

// SideSell is the exchange's sell-side literal. Any other side value on a
// trade message, including absent, decodes as a buy.
const SideSell = "sell"

// Published fee schedule. Applied when a trade record omits its fee.
const (
	DefaultMakerFeeRate = "0.002"
	DefaultTakerFeeRate = "0.002"
)

// DefaultDepthLimit is the level count requested for book snapshots.
const DefaultDepthLimit = 100

// Per-path rate budgets (requests per window). Enforcement lives in the
// throttling collaborator; the connector tags each call with its path.
var pathBudgets = map[string]int{
	AccountBalancesPath: 60,
	AccountTradesPath:   60,
	CreateOrderPath:     100,
	CancelOrderPath:     100,
	MarketsPath:         10,
	TickerPath:          60,
	TickersPath:         10,
	DepthPath:           60,
}
