package core

// Operation represents a type of action performed against the exchange.
type Operation int

// Operation constants define all supported exchange operations.
const (
	// OpGetMarkets retrieves the market listing used to build the symbol map.
	OpGetMarkets Operation = iota
	// OpGetTicker retrieves the ticker for one market.
	OpGetTicker
	// OpGetTickers retrieves tickers for every market.
	OpGetTickers
	// OpGetOrderBook retrieves an order-book snapshot.
	OpGetOrderBook
	// OpGetBalances retrieves the account balance snapshot.
	OpGetBalances
	// OpPlaceOrder submits a new order.
	OpPlaceOrder
	// OpCancelOrder cancels an existing order.
	OpCancelOrder
	// OpGetAccountTrades retrieves the account trade history for an order.
	OpGetAccountTrades
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return [...]string{
		"GET_MARKETS",
		"GET_TICKER",
		"GET_TICKERS",
		"GET_ORDER_BOOK",
		"GET_BALANCES",
		"PLACE_ORDER",
		"CANCEL_ORDER",
		"GET_ACCOUNT_TRADES",
	}[o]
}
