package coinsbit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsbridge/pkg/core"
)

func TestNormalizer_NormalizeSnapshot(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"asks":[["50100.5","0.25"],["50200","1"]],"bids":[["50000","0.5"]]}`)
	ts := time.UnixMilli(1700000000000).UTC()

	event, err := n.NormalizeSnapshot(raw, core.NewTradingPair("BTC", "USDT"), ts)
	require.NoError(t, err)

	assert.Equal(t, core.EventSnapshot, event.Type)
	assert.Equal(t, "BTC-USDT", event.Pair.String())
	require.Len(t, event.Asks, 2)
	require.Len(t, event.Bids, 1)
	assert.Equal(t, "50100.5", event.Asks[0].Price.String())
	assert.Equal(t, "0.25", event.Asks[0].Amount.String())
	assert.Equal(t, int64(1700000000000), event.Sequence)
}

func TestNormalizer_NormalizeSnapshot_Malformed(t *testing.T) {
	n := NewNormalizer()

	_, err := n.NormalizeSnapshot([]byte(`{"bids":[["50000"]]}`), core.NewTradingPair("BTC", "USDT"), time.Now())
	assert.True(t, core.IsMalformedMessageError(err))

	_, err = n.NormalizeSnapshot([]byte(`{"bids":[["abc","1"]]}`), core.NewTradingPair("BTC", "USDT"), time.Now())
	assert.True(t, core.IsMalformedMessageError(err))
}

func TestNormalizer_NormalizeDiff(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"method":"depth.update","params":[false,{"bids":[["49900","0.1"]],"asks":[["50100","0.2"]]},"BTC_USDT"],"ts":1700000123.456,"id":null}`)

	event, err := n.NormalizeDiff(raw)
	require.NoError(t, err)

	assert.Equal(t, core.EventDiff, event.Type)
	assert.Equal(t, "BTC-USDT", event.Pair.String())
	require.Len(t, event.Bids, 1)
	require.Len(t, event.Asks, 1)
	assert.Equal(t, "49900", event.Bids[0].Price.String())
	assert.Equal(t, int64(1700000123456), event.Sequence)
}

func TestNormalizer_NormalizeDiff_MissingTs(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"method":"depth.update","params":[false,{"bids":[],"asks":[]},"BTC_USDT"]}`)

	_, err := n.NormalizeDiff(raw)
	assert.True(t, core.IsMalformedMessageError(err))
}

func TestNormalizer_NormalizeDiff_ShortParams(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"method":"depth.update","params":[false],"ts":1700000123.456}`)

	_, err := n.NormalizeDiff(raw)
	assert.True(t, core.IsMalformedMessageError(err))
}

func TestNormalizer_NormalizeTrade_NestedShape(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"method":"deals.update","params":["BTC_USDT",[{"id":41358530,"time":1700000200.25,"price":"50050.5","amount":"0.003","type":"sell"},{"id":41358531,"time":1700000201.5,"price":"50051","amount":"0.01","type":"buy"}]]}`)

	events, err := n.NormalizeTrade(raw, core.TradingPair{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, core.EventTrade, first.Type)
	assert.Equal(t, "BTC-USDT", first.Pair.String())
	require.NotNil(t, first.Trade)
	assert.Equal(t, "41358530", first.Trade.ID)
	assert.Equal(t, core.SideSell, first.Trade.Side)
	assert.Equal(t, "50050.5", first.Trade.Price.String())

	assert.Equal(t, core.SideBuy, events[1].Trade.Side)
}

func TestNormalizer_NormalizeTrade_FlatShape(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"t":987654,"result":["x","y","50075.25","sell","z",1700000300.75,"a","b","0.042"]}`)
	fallback := core.NewTradingPair("BTC", "USDT")

	events, err := n.NormalizeTrade(raw, fallback)
	require.NoError(t, err)
	require.Len(t, events, 1)

	trade := events[0].Trade
	require.NotNil(t, trade)
	assert.Equal(t, "987654", trade.ID)
	assert.Equal(t, core.SideSell, trade.Side)
	assert.Equal(t, "50075.25", trade.Price.String())
	assert.Equal(t, "0.042", trade.Amount.String())
	assert.Equal(t, fallback, events[0].Pair)
}

func TestNormalizer_NormalizeTrade_SideDefaultsToBuy(t *testing.T) {
	n := NewNormalizer()

	// Literal "sell" is the only sell marker; anything else, including a
	// missing type, is a buy.
	for _, wire := range []string{
		`{"method":"deals.update","params":["BTC_USDT",[{"id":1,"time":1700000200,"price":"1","amount":"1","type":"SELL"}]]}`,
		`{"method":"deals.update","params":["BTC_USDT",[{"id":2,"time":1700000200,"price":"1","amount":"1","type":"unknown"}]]}`,
		`{"method":"deals.update","params":["BTC_USDT",[{"id":3,"time":1700000200,"price":"1","amount":"1"}]]}`,
	} {
		events, err := n.NormalizeTrade([]byte(wire), core.TradingPair{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, core.SideBuy, events[0].Trade.Side)
	}
}

func TestNormalizer_NormalizeTrade_UnknownShape(t *testing.T) {
	n := NewNormalizer()

	for _, wire := range []string{
		`{"method":"ticker.update","params":[]}`,
		`{"result":["only","three","slots"]}`,
		`{"foo":"bar"}`,
		`[1,2,3]`,
	} {
		_, err := n.NormalizeTrade([]byte(wire), core.TradingPair{})
		assert.True(t, core.IsMalformedMessageError(err), "shape should be rejected: %s", wire)
	}
}

func TestNormalizer_NormalizeBalances(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"BTC":{"available":"1.5","freeze":"0.5"},"USDT":{"available":"1000","freeze":"0"}}`)

	snapshot, err := n.NormalizeBalances(raw)
	require.NoError(t, err)
	require.Len(t, snapshot.Balances, 2)
	assert.Empty(t, snapshot.Malformed)

	btc := snapshot.Balances["BTC"]
	assert.Equal(t, "BTC", btc.Asset)
	assert.Equal(t, "1.5", btc.Free.String())
	assert.Equal(t, "0.5", btc.Locked.String())

	total, err := btc.Total()
	require.NoError(t, err)
	assert.Equal(t, "2.0", total.String())
}

func TestNormalizer_NormalizeBalances_MalformedRecordExcluded(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"BTC":{"available":"1.5","freeze":"0.5"},"ETH":{"available":"2"},"XRP":{"freeze":"1"},"DOGE":{"available":"oops","freeze":"0"}}`)

	snapshot, err := n.NormalizeBalances(raw)
	require.NoError(t, err)

	assert.Len(t, snapshot.Balances, 1)
	assert.Contains(t, snapshot.Balances, "BTC")
	assert.ElementsMatch(t, []string{"ETH", "XRP", "DOGE"}, snapshot.Malformed)
}

func TestNormalizer_NormalizeFills(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"offset":0,"limit":50,"records":[{"id":7001,"time":1700000400.5,"price":"100","amount":"0.5","deal":"50","fee":"0.1"},{"id":7002,"time":1700000401,"price":"100","amount":"0.25"}]}`)

	fills, err := n.NormalizeFills(raw, "CBT-abc", "555")
	require.NoError(t, err)
	require.Len(t, fills, 2)

	first := fills[0]
	assert.Equal(t, "7001", first.TradeID)
	assert.Equal(t, "CBT-abc", first.ClientOrderID)
	assert.Equal(t, "555", first.ExchangeOrderID)
	assert.Equal(t, "50", first.QuoteAmount.String())
	assert.Equal(t, "0.1", first.Fee.String())

	// No deal field: quote = price x amount; no fee: taker default.
	second := fills[1]
	assert.Equal(t, "25.00", second.QuoteAmount.String())
	assert.Equal(t, "0.05000", second.Fee.String())
}

func TestNormalizer_NormalizeOrderAck(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`[25749, "BTC_USDT", "buy", "limit", 1700000500.125, "0.001", "50000", "0"]`)

	orderID, transactTime, err := n.NormalizeOrderAck(raw)
	require.NoError(t, err)
	assert.Equal(t, "25749", orderID)
	assert.Equal(t, int64(1700000500125), transactTime.UnixMilli())
}

func TestNormalizer_NormalizeOrderAck_TooShort(t *testing.T) {
	n := NewNormalizer()

	_, _, err := n.NormalizeOrderAck([]byte(`[25749, "BTC_USDT"]`))
	assert.True(t, core.IsMalformedMessageError(err))

	_, _, err = n.NormalizeOrderAck([]byte(`{"orderId":25749}`))
	assert.True(t, core.IsMalformedMessageError(err))
}

func TestNormalizer_NormalizeMarkets(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`[{"name":"BTC_USDT","stock":"BTC","money":"USDT","stockPrec":"6","moneyPrec":"2","minAmount":"0.001"},{"name":"ETH_USDT","stock":"ETH","money":"USDT","stockPrec":4,"moneyPrec":2,"minAmount":"0.01"}]`)

	markets, err := n.NormalizeMarkets(raw)
	require.NoError(t, err)
	require.Len(t, markets, 2)

	assert.Equal(t, "BTC_USDT", markets[0].Name)
	assert.Equal(t, 6, markets[0].StockPrec)
	assert.Equal(t, "0.001", markets[0].MinAmount.String())
	assert.Equal(t, 4, markets[1].StockPrec)
}

func TestNormalizer_NormalizeTicker(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"bid":"49999","ask":"50001","last":"50000","volume":"123.45"}`)
	pair := core.NewTradingPair("BTC", "USDT")

	ticker, err := n.NormalizeTicker(raw, pair, time.Now())
	require.NoError(t, err)
	assert.Equal(t, pair, ticker.Pair)
	assert.Equal(t, "50000", ticker.Last.String())
	assert.Equal(t, "49999", ticker.Bid.String())
}

func TestNormalizer_NormalizeLastPrices(t *testing.T) {
	n := NewNormalizer()
	raw := []byte(`{"BTC_USDT":{"ticker":{"last":"50000"}},"ETH_USDT":{"ticker":{"last":"3000"}},"BAD_MARKET":{"ticker":{"last":"oops"}}}`)

	prices, err := n.NormalizeLastPrices(raw)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	last := prices["BTC_USDT"]
	assert.Equal(t, "50000", last.String())
}

func TestNormalizer_WithSymbolMapper(t *testing.T) {
	m := NewSymbolMapper()
	m.Rebuild([]core.Market{{Name: "BTCUSDT", Stock: "BTC", Money: "USDT"}})
	n := NewNormalizer(WithSymbolMapper(m))

	// The mapper resolves names syntactic splitting cannot.
	raw := []byte(`{"method":"depth.update","params":[false,{"bids":[],"asks":[]},"BTCUSDT"],"ts":1700000123.0}`)
	event, err := n.NormalizeDiff(raw)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT", event.Pair.String())

	unknown := []byte(`{"method":"depth.update","params":[false,{"bids":[],"asks":[]},"DOGE_USDT"],"ts":1700000123.0}`)
	_, err = n.NormalizeDiff(unknown)
	assert.True(t, core.IsNotFoundError(err))
}
