package exchange

import (
	"context"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsbridge/pkg/core"
)

type stubConnector struct {
	name string
}

func (s *stubConnector) Name() string   { return s.name }
func (s *stubConnector) Domain() string { return "io" }

func (s *stubConnector) GetMarkets(context.Context) ([]core.Market, error) { return nil, nil }
func (s *stubConnector) RefreshSymbols(context.Context) (int, error)       { return 0, nil }

func (s *stubConnector) GetTicker(context.Context, core.TradingPair) (*core.Ticker, error) {
	return nil, nil
}

func (s *stubConnector) GetLastPrice(context.Context, core.TradingPair) (apd.Decimal, error) {
	return apd.Decimal{}, nil
}

func (s *stubConnector) GetAllLastPrices(context.Context) (map[core.TradingPair]apd.Decimal, error) {
	return nil, nil
}

func (s *stubConnector) GetOrderBookSnapshot(context.Context, core.TradingPair, ...Option) (*core.BookEvent, error) {
	return nil, nil
}

func (s *stubConnector) GetBalances(context.Context) (core.BalanceSnapshot, error) {
	return core.BalanceSnapshot{}, nil
}

func (s *stubConnector) PlaceOrder(context.Context, *core.OrderRequest, ...Option) (*OrderAck, error) {
	return nil, nil
}

func (s *stubConnector) CancelOrder(context.Context, *CancelRequest, ...Option) (bool, error) {
	return false, nil
}

func (s *stubConnector) GetOrderFills(context.Context, *FillQuery, ...Option) ([]core.Fill, error) {
	return nil, nil
}

func TestContainer(t *testing.T) {
	c := NewContainer()

	_, err := c.Get("coinsbit")
	assert.Error(t, err)
	assert.False(t, c.Exists("coinsbit"))

	conn := &stubConnector{name: "coinsbit"}
	c.Register("coinsbit", conn)
	assert.True(t, c.Exists("coinsbit"))

	got, err := c.Get("coinsbit")
	require.NoError(t, err)
	assert.Equal(t, "coinsbit", got.Name())

	assert.Equal(t, []string{"coinsbit"}, c.Names())

	c.Unregister("coinsbit")
	assert.False(t, c.Exists("coinsbit"))
	assert.Empty(t, c.Names())
}

func TestContainer_RegisterOverwrites(t *testing.T) {
	c := NewContainer()
	c.Register("coinsbit", &stubConnector{name: "first"})
	c.Register("coinsbit", &stubConnector{name: "second"})

	got, err := c.Get("coinsbit")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name())
	assert.Len(t, c.Names(), 1)
}

func TestApplyOptions(t *testing.T) {
	opts := ApplyOptions(WithLimit(25))
	assert.Equal(t, 25, opts.Limit)

	assert.Equal(t, 0, ApplyOptions().Limit)
}
