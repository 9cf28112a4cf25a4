package balance

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsbridge/pkg/core"
)

func dec(t *testing.T, s string) apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return *d
}

func snapshot(t *testing.T, balances map[string][2]string, malformed ...string) core.BalanceSnapshot {
	t.Helper()
	snap := core.BalanceSnapshot{
		Balances:  make(map[string]core.Balance, len(balances)),
		Malformed: malformed,
	}
	for asset, amounts := range balances {
		snap.Balances[asset] = core.Balance{
			Asset:  asset,
			Free:   dec(t, amounts[0]),
			Locked: dec(t, amounts[1]),
		}
	}
	return snap
}

func TestReconciler_AddUpdateRemove(t *testing.T) {
	r := NewReconciler()

	delta := r.Reconcile(snapshot(t, map[string][2]string{
		"BTC":  {"1.5", "0.5"},
		"USDT": {"1000", "0"},
	}))
	assert.Equal(t, []string{"BTC", "USDT"}, delta.Added)
	assert.Empty(t, delta.Updated)
	assert.Empty(t, delta.Removed)

	delta = r.Reconcile(snapshot(t, map[string][2]string{
		"BTC": {"2.0", "0.5"},
		"ETH": {"3", "0"},
	}))
	assert.Equal(t, []string{"ETH"}, delta.Added)
	assert.Equal(t, []string{"BTC"}, delta.Updated)
	assert.Equal(t, []string{"USDT"}, delta.Removed)

	assert.Equal(t, 2, r.Len())
	btc, ok := r.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, "2.0", btc.Free.String())
}

func TestReconciler_Idempotent(t *testing.T) {
	r := NewReconciler()
	snap := snapshot(t, map[string][2]string{
		"BTC":  {"1.5", "0.5"},
		"USDT": {"1000", "0"},
	})

	first := r.Reconcile(snap)
	assert.False(t, first.Empty())
	before := r.All()

	second := r.Reconcile(snap)
	assert.True(t, second.Empty())
	assert.Equal(t, len(before), r.Len())
	for asset, b := range before {
		after, ok := r.Get(asset)
		require.True(t, ok)
		assert.Zero(t, b.Free.Cmp(&after.Free))
		assert.Zero(t, b.Locked.Cmp(&after.Locked))
	}
}

func TestReconciler_EquivalentDecimalsAreNoops(t *testing.T) {
	r := NewReconciler()
	r.Reconcile(snapshot(t, map[string][2]string{"BTC": {"1.5", "0.5"}}))

	// 1.50 == 1.5 numerically; the record is not treated as changed.
	delta := r.Reconcile(snapshot(t, map[string][2]string{"BTC": {"1.50", "0.50"}}))
	assert.True(t, delta.Empty())
}

func TestReconciler_MalformedAssetRetained(t *testing.T) {
	r := NewReconciler()
	r.Reconcile(snapshot(t, map[string][2]string{
		"BTC": {"1.5", "0.5"},
		"ETH": {"3", "1"},
	}))

	// ETH came back malformed: absent from Balances, listed in Malformed.
	// The prior local value must survive instead of being removed.
	delta := r.Reconcile(snapshot(t, map[string][2]string{
		"BTC": {"1.5", "0.5"},
	}, "ETH"))

	assert.Empty(t, delta.Removed)
	eth, ok := r.Get("ETH")
	require.True(t, ok)
	assert.Equal(t, "3", eth.Free.String())
	assert.Equal(t, "1", eth.Locked.String())
}

func TestReconciler_BTCExample(t *testing.T) {
	r := NewReconciler()
	r.Reconcile(snapshot(t, map[string][2]string{"BTC": {"1.5", "0.5"}}))

	btc, ok := r.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, "1.5", btc.Free.String())
	assert.Equal(t, "0.5", btc.Locked.String())

	total, err := btc.Total()
	require.NoError(t, err)
	assert.Equal(t, "2.0", total.String())
}
