package coinsbit

import (
	"fmt"
	"strings"
	"sync"

	"coinsbridge/pkg/core"
)

// SymbolMapper translates between canonical trading pairs (BASE-QUOTE) and
// the exchange's native market names (BASE_QUOTE). The mapping is built
// from the exchange's market list and swapped atomically on rebuild, so
// readers never observe a half-built table.
type SymbolMapper struct {
	mu       sync.RWMutex
	toNative map[core.TradingPair]string
	toPair   map[string]core.TradingPair
}

func NewSymbolMapper() *SymbolMapper {
	return &SymbolMapper{
		toNative: make(map[core.TradingPair]string),
		toPair:   make(map[string]core.TradingPair),
	}
}

// Rebuild replaces the mapping from a fresh market list. Markets with an
// empty stock or money currency are skipped; they cannot form a valid
// pair. Returns the number of markets admitted.
func (m *SymbolMapper) Rebuild(markets []core.Market) int {
	toNative := make(map[core.TradingPair]string, len(markets))
	toPair := make(map[string]core.TradingPair, len(markets))

	for _, market := range markets {
		if market.Stock == "" || market.Money == "" {
			continue
		}
		pair := core.NewTradingPair(market.Stock, market.Money)
		native := market.Name
		if native == "" {
			native = fmt.Sprintf("%s_%s", pair.Base, pair.Quote)
		}
		toNative[pair] = native
		toPair[native] = pair
	}

	m.mu.Lock()
	m.toNative = toNative
	m.toPair = toPair
	m.mu.Unlock()

	return len(toNative)
}

// Resolve maps a canonical pair to the exchange's market name.
func (m *SymbolMapper) Resolve(pair core.TradingPair) (string, error) {
	m.mu.RLock()
	native, ok := m.toNative[pair]
	m.mu.RUnlock()
	if !ok {
		return "", core.NewNotFoundError(fmt.Sprintf("no market for trading pair %s", pair))
	}
	return native, nil
}

// ResolveReverse maps an exchange market name back to a canonical pair.
func (m *SymbolMapper) ResolveReverse(native string) (core.TradingPair, error) {
	m.mu.RLock()
	pair, ok := m.toPair[native]
	m.mu.RUnlock()
	if !ok {
		return core.TradingPair{}, core.NewNotFoundError(fmt.Sprintf("unknown market %q", native))
	}
	return pair, nil
}

// Size reports how many markets are currently mapped.
func (m *SymbolMapper) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toNative)
}

// GuessPair converts a market name to a pair syntactically, without
// consulting the mapping. Used before the first market-list fetch.
func GuessPair(native string) (core.TradingPair, error) {
	parts := strings.SplitN(native, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return core.TradingPair{}, core.NewNotFoundError(fmt.Sprintf("market name %q is not BASE_QUOTE", native))
	}
	return core.NewTradingPair(parts[0], parts[1]), nil
}
