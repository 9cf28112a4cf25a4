package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// OrderSide represents the direction of an order or trade (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase the base asset.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell the base asset.
	SideSell
)

// String returns the string representation of the order side ("BUY" or "SELL").
func (s OrderSide) String() string {
	return [...]string{"BUY", "SELL"}[s]
}

// Wire returns the lowercase form the exchange expects in request bodies.
func (s OrderSide) Wire() string {
	return [...]string{"buy", "sell"}[s]
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It accepts both uppercase and lowercase forms.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"BUY"`, `"buy"`:
		*s = SideBuy
	case `"SELL"`, `"sell"`:
		*s = SideSell
	}
	return nil
}

// OrderState represents the lifecycle state of a tracked order.
type OrderState int

// Order state constants define the order lifecycle.
const (
	// StateSubmitted indicates the order has been sent but not yet acknowledged.
	StateSubmitted OrderState = iota
	// StateOpen indicates the exchange acknowledged the order onto its book.
	StateOpen
	// StatePartiallyFilled indicates part of the order amount has executed.
	StatePartiallyFilled
	// StateFilled indicates the order has fully executed.
	StateFilled
	// StateCancelled indicates the order was cancelled before completion.
	StateCancelled
	// StateRejected indicates the exchange refused the order.
	StateRejected
	// StateFailed indicates an unrecoverable transport error while the order was live.
	StateFailed
)

// String returns the string representation of the order state.
func (s OrderState) String() string {
	return [...]string{
		"SUBMITTED",
		"OPEN",
		"PARTIALLY_FILLED",
		"FILLED",
		"CANCELLED",
		"REJECTED",
		"FAILED",
	}[s]
}

// IsTerminal returns true if no further state transitions are possible.
func (s OrderState) IsTerminal() bool {
	return s == StateFilled || s == StateCancelled || s == StateRejected || s == StateFailed
}

// MarshalJSON implements json.Marshaler for OrderState.
func (s OrderState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// TradingPair is the canonical identifier for an exchange market,
// rendered as "BASE-QUOTE" in uppercase. Within a connector session every
// native symbol maps to exactly one TradingPair and vice versa.
type TradingPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewTradingPair builds a TradingPair, normalizing both legs to uppercase.
func NewTradingPair(base, quote string) TradingPair {
	return TradingPair{
		Base:  strings.ToUpper(base),
		Quote: strings.ToUpper(quote),
	}
}

// ParseTradingPair parses a canonical "BASE-QUOTE" string.
func ParseTradingPair(s string) (TradingPair, error) {
	base, quote, ok := strings.Cut(s, "-")
	if !ok || base == "" || quote == "" {
		return TradingPair{}, fmt.Errorf("invalid trading pair: %q", s)
	}
	return NewTradingPair(base, quote), nil
}

// String returns the canonical "BASE-QUOTE" form.
func (p TradingPair) String() string {
	return p.Base + "-" + p.Quote
}

// IsZero returns true for the empty pair.
func (p TradingPair) IsZero() bool {
	return p.Base == "" && p.Quote == ""
}

// MarshalJSON implements json.Marshaler for TradingPair.
func (p TradingPair) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for TradingPair.
func (p *TradingPair) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTradingPair(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// BookEventType discriminates the variants of a BookEvent.
type BookEventType int

// Book event variants.
const (
	// EventSnapshot is a full order-book state at a point in time.
	EventSnapshot BookEventType = iota
	// EventDiff is an incremental order-book change.
	EventDiff
	// EventTrade is a single executed public trade.
	EventTrade
)

// String returns the string representation of the event type.
func (t BookEventType) String() string {
	return [...]string{"SNAPSHOT", "DIFF", "TRADE"}[t]
}

// BookLevel is a single (price, amount) entry on one side of the book.
type BookLevel struct {
	Price  apd.Decimal `json:"price"`
	Amount apd.Decimal `json:"amount"`
}

// TradeData carries the trade-specific fields of a BookEvent.
type TradeData struct {
	// ID is the exchange-assigned trade identifier.
	ID string `json:"id"`
	// Side is the taker side of the trade.
	Side OrderSide `json:"side"`
	// Price is the execution price.
	Price apd.Decimal `json:"price"`
	// Amount is the executed base amount.
	Amount apd.Decimal `json:"amount"`
}

// BookEvent is a canonical market-data event: a tagged variant covering
// snapshot, diff, and trade. Bids and Asks are populated for snapshots
// and diffs; Trade is populated for trades. Sequence establishes per-pair
// ordering for diffs relative to the last applied snapshot.
type BookEvent struct {
	Type      BookEventType `json:"type"`
	Pair      TradingPair   `json:"trading_pair"`
	Bids      []BookLevel   `json:"bids,omitempty"`
	Asks      []BookLevel   `json:"asks,omitempty"`
	Trade     *TradeData    `json:"trade,omitempty"`
	Sequence  int64         `json:"sequence"`
	Timestamp time.Time     `json:"timestamp"`
}

// Balance represents account holdings for a single asset.
type Balance struct {
	// Asset is the currency or token symbol (e.g., "BTC").
	Asset string `json:"asset"`
	// Free is the balance available for trading.
	Free apd.Decimal `json:"free"`
	// Locked is the balance frozen in open orders.
	Locked apd.Decimal `json:"locked"`
}

// Total returns free + locked. The total is always derived, never stored.
func (b *Balance) Total() (apd.Decimal, error) {
	var total apd.Decimal
	if _, err := apd.BaseContext.Add(&total, &b.Free, &b.Locked); err != nil {
		return apd.Decimal{}, fmt.Errorf("sum balance: %w", err)
	}
	return total, nil
}

// BalanceSnapshot is the normalized form of a remote balance response.
// Malformed lists assets whose records could not be decoded; reconciliation
// keeps the previous local value for those assets instead of zeroing them.
type BalanceSnapshot struct {
	Balances  map[string]Balance `json:"balances"`
	Malformed []string           `json:"malformed,omitempty"`
}

// OrderRequest contains the parameters for a new order. It is immutable
// once submitted.
type OrderRequest struct {
	Pair          TradingPair `json:"trading_pair"`
	Side          OrderSide   `json:"side"`
	Amount        apd.Decimal `json:"amount"`
	Price         apd.Decimal `json:"price"`
	ClientOrderID string      `json:"client_order_id" validate:"omitempty,max=32"`
}

// OrderRecord tracks a single order through its lifecycle. ExchangeOrderID
// stays empty until the exchange acknowledges the order.
type OrderRecord struct {
	ClientOrderID   string      `json:"client_order_id"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
	Pair            TradingPair `json:"trading_pair"`
	Side            OrderSide   `json:"side"`
	State           OrderState  `json:"state"`
	Price           apd.Decimal `json:"price"`
	Amount          apd.Decimal `json:"amount"`
	FilledAmount    apd.Decimal `json:"filled_amount"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Fill is a single execution applied to an order. Fills are never mutated
// after creation.
type Fill struct {
	TradeID         string      `json:"trade_id"`
	ClientOrderID   string      `json:"client_order_id"`
	ExchangeOrderID string      `json:"exchange_order_id"`
	Price           apd.Decimal `json:"fill_price"`
	BaseAmount      apd.Decimal `json:"fill_base_amount"`
	QuoteAmount     apd.Decimal `json:"fill_quote_amount"`
	Fee             apd.Decimal `json:"fee"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Ticker holds current price information for a pair.
type Ticker struct {
	Pair      TradingPair `json:"trading_pair"`
	Bid       apd.Decimal `json:"bid"`
	Ask       apd.Decimal `json:"ask"`
	Last      apd.Decimal `json:"last"`
	Volume    apd.Decimal `json:"volume"`
	Timestamp time.Time   `json:"timestamp"`
}

// Market describes one entry of the exchange market listing.
type Market struct {
	// Name is the exchange-native symbol (e.g., "BTC_USDT").
	Name string `json:"name"`
	// Stock is the base asset.
	Stock string `json:"stock"`
	// Money is the quote asset.
	Money string `json:"money"`
	// StockPrec and MoneyPrec are the amount and price decimal precisions.
	StockPrec int `json:"stockPrec"`
	MoneyPrec int `json:"moneyPrec"`
	// MinAmount is the minimum order size reported by the exchange.
	MinAmount apd.Decimal `json:"minAmount"`
}
