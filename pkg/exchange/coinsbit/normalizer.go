package coinsbit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"coinsbridge/pkg/core"
)

// Normalizer translates raw wire payloads into canonical records. Every
// method is total over well-formed input and fails with a
// MalformedMessage error otherwise; numeric fields are parsed as
// arbitrary-precision decimals, never floats.
type Normalizer struct {
	resolve func(string) (core.TradingPair, error)
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithSymbolMapper resolves wire market names through the given mapper
// instead of syntactic BASE_QUOTE splitting.
func WithSymbolMapper(m *SymbolMapper) NormalizerOption {
	return func(n *Normalizer) {
		n.resolve = m.ResolveReverse
	}
}

// NewNormalizer creates a Normalizer. Without options, market names are
// resolved syntactically.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{resolve: GuessPair}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// depthPayload is the bid/ask level container shared by the snapshot
// response and the diff frame: levels are [price, amount] string pairs.
type depthPayload struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// wsEnvelope is the push-channel frame envelope. Params nesting is
// protocol-defined per method; ts is the envelope timestamp in seconds.
type wsEnvelope struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Ts     *float64          `json:"ts"`
}

// NormalizeSnapshot translates a REST depth response into a Snapshot
// event. The caller supplies the pair (the response carries no market
// field) and the fetch timestamp, which also seeds the sequence baseline.
func (n *Normalizer) NormalizeSnapshot(raw []byte, pair core.TradingPair, ts time.Time) (core.BookEvent, error) {
	var payload depthPayload
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("snapshot: " + err.Error()).WithRaw(string(raw))
	}
	bids, err := parseLevels(payload.Bids)
	if err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("snapshot bids: " + err.Error()).WithRaw(string(raw))
	}
	asks, err := parseLevels(payload.Asks)
	if err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("snapshot asks: " + err.Error()).WithRaw(string(raw))
	}
	return core.BookEvent{
		Type:      core.EventSnapshot,
		Pair:      pair,
		Bids:      bids,
		Asks:      asks,
		Sequence:  ts.UnixMilli(),
		Timestamp: ts,
	}, nil
}

// NormalizeDiff translates a depth.update frame into a Diff event. The
// level payload sits at params[1] and the market name at params[2]; both
// positions are fixed by the protocol. The envelope ts field is required
// and establishes the event's sequence.
func (n *Normalizer) NormalizeDiff(raw []byte) (core.BookEvent, error) {
	var env wsEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("diff envelope: " + err.Error()).WithRaw(string(raw))
	}
	if env.Method != DepthUpdateMethod {
		return core.BookEvent{}, core.NewMalformedMessageError(fmt.Sprintf("diff: unexpected method %q", env.Method)).WithRaw(string(raw))
	}
	if len(env.Params) < 3 {
		return core.BookEvent{}, core.NewMalformedMessageError("diff: params shorter than 3").WithRaw(string(raw))
	}
	if env.Ts == nil {
		return core.BookEvent{}, core.NewMalformedMessageError("diff: envelope ts missing").WithRaw(string(raw))
	}

	var payload depthPayload
	if err := sonic.Unmarshal(env.Params[1], &payload); err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("diff payload: " + err.Error()).WithRaw(string(raw))
	}
	var market string
	if err := sonic.Unmarshal(env.Params[2], &market); err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("diff market: " + err.Error()).WithRaw(string(raw))
	}
	pair, err := n.resolve(market)
	if err != nil {
		return core.BookEvent{}, err
	}
	bids, err := parseLevels(payload.Bids)
	if err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("diff bids: " + err.Error()).WithRaw(string(raw))
	}
	asks, err := parseLevels(payload.Asks)
	if err != nil {
		return core.BookEvent{}, core.NewMalformedMessageError("diff asks: " + err.Error()).WithRaw(string(raw))
	}

	ts := secondsToTime(*env.Ts)
	return core.BookEvent{
		Type:      core.EventDiff,
		Pair:      pair,
		Bids:      bids,
		Asks:      asks,
		Sequence:  ts.UnixMilli(),
		Timestamp: ts,
	}, nil
}

// nestedTrade is one entry of the params-wrapped deals.update shape.
type nestedTrade struct {
	ID     json.Number `json:"id"`
	Time   float64     `json:"time"`
	Price  string      `json:"price"`
	Amount string      `json:"amount"`
	Type   string      `json:"type"`
}

// flatTradeFrame is the flat positional trade shape: the trade id sits at
// the top-level "t" key while price, side, time, and amount occupy fixed
// slots of the result array.
type flatTradeFrame struct {
	TradeID json.Number       `json:"t"`
	Result  []json.RawMessage `json:"result"`
}

const (
	flatTradePriceIdx  = 2
	flatTradeSideIdx   = 3
	flatTradeTimeIdx   = 5
	flatTradeAmountIdx = 8
)

// NormalizeTrade translates a trade frame into Trade events. The wire
// delivers trades in two incompatible shapes; a shape-detection predicate
// picks the decoder, and anything matching neither shape is a
// MalformedMessage error rather than a positional misread. fallback names
// the pair for the flat shape, which carries no market field.
func (n *Normalizer) NormalizeTrade(raw []byte, fallback core.TradingPair) ([]core.BookEvent, error) {
	var env wsEnvelope
	if err := sonic.Unmarshal(raw, &env); err == nil && env.Method == DealsUpdateMethod {
		return n.normalizeNestedTrades(raw, env)
	}

	var flat flatTradeFrame
	if err := sonic.Unmarshal(raw, &flat); err == nil && flat.TradeID != "" && len(flat.Result) > flatTradeAmountIdx {
		return n.normalizeFlatTrade(raw, flat, fallback)
	}

	return nil, core.NewMalformedMessageError("trade: payload matches no known shape").WithRaw(string(raw))
}

func (n *Normalizer) normalizeNestedTrades(raw []byte, env wsEnvelope) ([]core.BookEvent, error) {
	if len(env.Params) < 2 {
		return nil, core.NewMalformedMessageError("trade: params shorter than 2").WithRaw(string(raw))
	}
	var market string
	if err := sonic.Unmarshal(env.Params[0], &market); err != nil {
		return nil, core.NewMalformedMessageError("trade market: " + err.Error()).WithRaw(string(raw))
	}
	pair, err := n.resolve(market)
	if err != nil {
		return nil, err
	}
	var trades []nestedTrade
	if err := sonic.Unmarshal(env.Params[1], &trades); err != nil {
		return nil, core.NewMalformedMessageError("trade list: " + err.Error()).WithRaw(string(raw))
	}

	events := make([]core.BookEvent, 0, len(trades))
	for _, t := range trades {
		price, err := parseDecimal(t.Price)
		if err != nil {
			return nil, core.NewMalformedMessageError("trade price: " + err.Error()).WithRaw(string(raw))
		}
		amount, err := parseDecimal(t.Amount)
		if err != nil {
			return nil, core.NewMalformedMessageError("trade amount: " + err.Error()).WithRaw(string(raw))
		}
		ts := secondsToTime(t.Time)
		events = append(events, core.BookEvent{
			Type: core.EventTrade,
			Pair: pair,
			Trade: &core.TradeData{
				ID:     t.ID.String(),
				Side:   parseSide(t.Type),
				Price:  price,
				Amount: amount,
			},
			Sequence:  ts.UnixMilli(),
			Timestamp: ts,
		})
	}
	return events, nil
}

func (n *Normalizer) normalizeFlatTrade(raw []byte, flat flatTradeFrame, pair core.TradingPair) ([]core.BookEvent, error) {
	var priceStr, sideStr, amountStr string
	var timeSec float64
	if err := sonic.Unmarshal(flat.Result[flatTradePriceIdx], &priceStr); err != nil {
		return nil, core.NewMalformedMessageError("trade price slot: " + err.Error()).WithRaw(string(raw))
	}
	if err := sonic.Unmarshal(flat.Result[flatTradeSideIdx], &sideStr); err != nil {
		return nil, core.NewMalformedMessageError("trade side slot: " + err.Error()).WithRaw(string(raw))
	}
	if err := sonic.Unmarshal(flat.Result[flatTradeTimeIdx], &timeSec); err != nil {
		return nil, core.NewMalformedMessageError("trade time slot: " + err.Error()).WithRaw(string(raw))
	}
	if err := sonic.Unmarshal(flat.Result[flatTradeAmountIdx], &amountStr); err != nil {
		return nil, core.NewMalformedMessageError("trade amount slot: " + err.Error()).WithRaw(string(raw))
	}

	price, err := parseDecimal(priceStr)
	if err != nil {
		return nil, core.NewMalformedMessageError("trade price: " + err.Error()).WithRaw(string(raw))
	}
	amount, err := parseDecimal(amountStr)
	if err != nil {
		return nil, core.NewMalformedMessageError("trade amount: " + err.Error()).WithRaw(string(raw))
	}
	ts := secondsToTime(timeSec)
	return []core.BookEvent{{
		Type: core.EventTrade,
		Pair: pair,
		Trade: &core.TradeData{
			ID:     flat.TradeID.String(),
			Side:   parseSide(sideStr),
			Price:  price,
			Amount: amount,
		},
		Sequence:  ts.UnixMilli(),
		Timestamp: ts,
	}}, nil
}

// balanceRecord is one asset entry of the balance response. Pointers
// distinguish an absent sub-field from a zero value.
type balanceRecord struct {
	Available *json.Number `json:"available"`
	Freeze    *json.Number `json:"freeze"`
}

// NormalizeBalances translates a balance response into a BalanceSnapshot.
// available and freeze are looked up by name; an asset missing either
// sub-field, or carrying an unparsable value, lands in Malformed and is
// excluded from Balances so reconciliation retains the prior local value.
func (n *Normalizer) NormalizeBalances(raw []byte) (core.BalanceSnapshot, error) {
	var assets map[string]balanceRecord
	if err := sonic.Unmarshal(raw, &assets); err != nil {
		return core.BalanceSnapshot{}, core.NewMalformedMessageError("balances: " + err.Error()).WithRaw(string(raw))
	}

	snapshot := core.BalanceSnapshot{Balances: make(map[string]core.Balance, len(assets))}
	for asset, rec := range assets {
		if rec.Available == nil || rec.Freeze == nil {
			snapshot.Malformed = append(snapshot.Malformed, asset)
			continue
		}
		free, err := parseDecimal(rec.Available.String())
		if err != nil {
			snapshot.Malformed = append(snapshot.Malformed, asset)
			continue
		}
		locked, err := parseDecimal(rec.Freeze.String())
		if err != nil {
			snapshot.Malformed = append(snapshot.Malformed, asset)
			continue
		}
		snapshot.Balances[asset] = core.Balance{Asset: asset, Free: free, Locked: locked}
	}
	return snapshot, nil
}

// tradeHistoryRecord is one entry of the account-trades response.
type tradeHistoryRecord struct {
	ID     json.Number `json:"id"`
	Time   float64     `json:"time"`
	Price  string      `json:"price"`
	Amount string      `json:"amount"`
	Deal   string      `json:"deal"`
	Fee    string      `json:"fee"`
}

// tradeHistoryPage is the account-trades result envelope.
type tradeHistoryPage struct {
	Offset  int                  `json:"offset"`
	Limit   int                  `json:"limit"`
	Records []tradeHistoryRecord `json:"records"`
}

// NormalizeFills translates an account-trades page into Fills attributed
// to the given order. The quote amount is the reported deal value when
// present, otherwise price x amount computed in decimal arithmetic; an
// absent fee defaults to the exchange's published taker rate.
func (n *Normalizer) NormalizeFills(raw []byte, clientOrderID, exchangeOrderID string) ([]core.Fill, error) {
	var page tradeHistoryPage
	if err := sonic.Unmarshal(raw, &page); err != nil {
		return nil, core.NewMalformedMessageError("trade history: " + err.Error()).WithRaw(string(raw))
	}

	fills := make([]core.Fill, 0, len(page.Records))
	for _, rec := range page.Records {
		fill, err := n.normalizeFill(rec, clientOrderID, exchangeOrderID)
		if err != nil {
			return nil, err
		}
		fills = append(fills, fill)
	}
	return fills, nil
}

func (n *Normalizer) normalizeFill(rec tradeHistoryRecord, clientOrderID, exchangeOrderID string) (core.Fill, error) {
	price, err := parseDecimal(rec.Price)
	if err != nil {
		return core.Fill{}, core.NewMalformedMessageError("fill price: " + err.Error())
	}
	amount, err := parseDecimal(rec.Amount)
	if err != nil {
		return core.Fill{}, core.NewMalformedMessageError("fill amount: " + err.Error())
	}

	var quote apd.Decimal
	if rec.Deal != "" {
		quote, err = parseDecimal(rec.Deal)
		if err != nil {
			return core.Fill{}, core.NewMalformedMessageError("fill deal: " + err.Error())
		}
	} else if _, err := apd.BaseContext.Mul(&quote, &price, &amount); err != nil {
		return core.Fill{}, core.NewMalformedMessageError("fill quote: " + err.Error())
	}

	var fee apd.Decimal
	if rec.Fee != "" {
		fee, err = parseDecimal(rec.Fee)
		if err != nil {
			return core.Fill{}, core.NewMalformedMessageError("fill fee: " + err.Error())
		}
	} else {
		rate, err := parseDecimal(DefaultTakerFeeRate)
		if err != nil {
			return core.Fill{}, err
		}
		if _, err := apd.BaseContext.Mul(&fee, &quote, &rate); err != nil {
			return core.Fill{}, core.NewMalformedMessageError("fill fee: " + err.Error())
		}
	}

	return core.Fill{
		TradeID:         rec.ID.String(),
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: exchangeOrderID,
		Price:           price,
		BaseAmount:      amount,
		QuoteAmount:     quote,
		Fee:             fee,
		Timestamp:       secondsToTime(rec.Time),
	}, nil
}

// wireMarket is one entry of the market listing. Precisions and the
// minimum amount arrive as strings on some deployments, so every numeric
// field decodes through json.Number.
type wireMarket struct {
	Name      string      `json:"name"`
	Stock     string      `json:"stock"`
	Money     string      `json:"money"`
	StockPrec json.Number `json:"stockPrec"`
	MoneyPrec json.Number `json:"moneyPrec"`
	MinAmount string      `json:"minAmount"`
}

// NormalizeMarkets translates the market listing into canonical Markets.
// Entries with unparsable numeric fields are skipped, not fatal; the
// symbol mapper applies its own validity filter on top.
func (n *Normalizer) NormalizeMarkets(raw []byte) ([]core.Market, error) {
	var wire []wireMarket
	if err := sonic.Unmarshal(raw, &wire); err != nil {
		return nil, core.NewMalformedMessageError("markets: " + err.Error()).WithRaw(string(raw))
	}

	markets := make([]core.Market, 0, len(wire))
	for _, w := range wire {
		m := core.Market{Name: w.Name, Stock: w.Stock, Money: w.Money}
		if v, err := w.StockPrec.Int64(); err == nil {
			m.StockPrec = int(v)
		}
		if v, err := w.MoneyPrec.Int64(); err == nil {
			m.MoneyPrec = int(v)
		}
		if w.MinAmount != "" {
			min, err := parseDecimal(w.MinAmount)
			if err != nil {
				continue
			}
			m.MinAmount = min
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// wireTicker is the single-market ticker result.
type wireTicker struct {
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Last   string `json:"last"`
	Volume string `json:"volume"`
}

// NormalizeTicker translates a ticker result for the given pair.
func (n *Normalizer) NormalizeTicker(raw []byte, pair core.TradingPair, ts time.Time) (*core.Ticker, error) {
	var w wireTicker
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return nil, core.NewMalformedMessageError("ticker: " + err.Error()).WithRaw(string(raw))
	}

	ticker := &core.Ticker{Pair: pair, Timestamp: ts}
	for _, field := range []struct {
		src string
		dst *apd.Decimal
	}{
		{w.Bid, &ticker.Bid},
		{w.Ask, &ticker.Ask},
		{w.Last, &ticker.Last},
		{w.Volume, &ticker.Volume},
	} {
		if field.src == "" {
			continue
		}
		d, err := parseDecimal(field.src)
		if err != nil {
			return nil, core.NewMalformedMessageError("ticker: " + err.Error()).WithRaw(string(raw))
		}
		*field.dst = d
	}
	return ticker, nil
}

// tickersEntry is one market of the all-tickers result.
type tickersEntry struct {
	Ticker wireTicker `json:"ticker"`
}

// NormalizeLastPrices extracts the last traded price per market from the
// all-tickers result, keyed by native market name. Markets with an
// unparsable or absent last price are skipped.
func (n *Normalizer) NormalizeLastPrices(raw []byte) (map[string]apd.Decimal, error) {
	var entries map[string]tickersEntry
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		return nil, core.NewMalformedMessageError("tickers: " + err.Error()).WithRaw(string(raw))
	}

	prices := make(map[string]apd.Decimal, len(entries))
	for market, entry := range entries {
		if entry.Ticker.Last == "" {
			continue
		}
		last, err := parseDecimal(entry.Ticker.Last)
		if err != nil {
			continue
		}
		prices[market] = last
	}
	return prices, nil
}

const (
	orderAckIDIdx   = 0
	orderAckTimeIdx = 5
)

// NormalizeOrderAck extracts the exchange order id and transaction time
// from an order-create acknowledgement. The result is a positional array;
// the id and the time occupy fixed slots.
func (n *Normalizer) NormalizeOrderAck(raw []byte) (string, time.Time, error) {
	var result []json.RawMessage
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return "", time.Time{}, core.NewMalformedMessageError("order ack: " + err.Error()).WithRaw(string(raw))
	}
	if len(result) <= orderAckTimeIdx {
		return "", time.Time{}, core.NewMalformedMessageError("order ack: result shorter than 6").WithRaw(string(raw))
	}
	var orderID json.Number
	if err := sonic.Unmarshal(result[orderAckIDIdx], &orderID); err != nil {
		return "", time.Time{}, core.NewMalformedMessageError("order ack id: " + err.Error()).WithRaw(string(raw))
	}
	var transactSec float64
	if err := sonic.Unmarshal(result[orderAckTimeIdx], &transactSec); err != nil {
		return "", time.Time{}, core.NewMalformedMessageError("order ack time: " + err.Error()).WithRaw(string(raw))
	}
	return orderID.String(), secondsToTime(transactSec), nil
}

// parseSide maps the wire side literal to an OrderSide. Anything other
// than the sell literal, including absent, is a buy.
func parseSide(s string) core.OrderSide {
	if s == SideSell {
		return core.SideSell
	}
	return core.SideBuy
}

func parseLevels(levels [][]string) ([]core.BookLevel, error) {
	out := make([]core.BookLevel, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			return nil, fmt.Errorf("level has %d fields, want 2", len(level))
		}
		price, err := parseDecimal(level[0])
		if err != nil {
			return nil, err
		}
		amount, err := parseDecimal(level[1])
		if err != nil {
			return nil, err
		}
		out = append(out, core.BookLevel{Price: price, Amount: amount})
	}
	return out, nil
}

func parseDecimal(s string) (apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return apd.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return *d, nil
}

// secondsToTime converts the wire's fractional-seconds timestamps.
func secondsToTime(sec float64) time.Time {
	return time.UnixMilli(int64(sec * 1000)).UTC()
}
