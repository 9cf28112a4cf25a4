package ordermanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"coinsbridge/pkg/core"
	"coinsbridge/pkg/exchange"
)

// UpdateCallback receives a copy of a record after every state change.
type UpdateCallback func(core.OrderRecord)

// Manager owns the active order set and drives each record through its
// lifecycle. Every state read-modify-write happens under the record's own
// mutex, so a concurrent cancel and fill reconciliation for the same
// order cannot race past the terminal check.
type Manager struct {
	connector exchange.Connector
	logger    zerolog.Logger

	mu     sync.RWMutex
	orders map[string]*trackedOrder

	callbacksMu sync.RWMutex
	callbacks   []UpdateCallback

	idPrefix string
}

// trackedOrder bundles a record with its fill history and dedupe set.
type trackedOrder struct {
	mu         sync.Mutex
	record     core.OrderRecord
	fills      []core.Fill
	seenTrades map[string]bool
}

// ClientOrderIDPrefix marks orders originated by this connector.
const ClientOrderIDPrefix = "CBT-"

// MaxClientOrderIDLen bounds generated and caller-supplied ids.
const MaxClientOrderIDLen = 32

// NewManager creates a Manager placing orders through the given connector.
func NewManager(connector exchange.Connector) *Manager {
	return &Manager{
		connector: connector,
		logger:    zerolog.Nop(),
		orders:    make(map[string]*trackedOrder),
		idPrefix:  ClientOrderIDPrefix,
	}
}

// SetLogger sets the logger for lifecycle events.
func (m *Manager) SetLogger(logger zerolog.Logger) {
	m.logger = logger
}

// OnUpdate registers a callback notified after every record state change.
func (m *Manager) OnUpdate(cb UpdateCallback) {
	m.callbacksMu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.callbacksMu.Unlock()
}

// validTransitions is the order state machine. A state absent from the
// map is terminal and admits nothing.
var validTransitions = map[core.OrderState][]core.OrderState{
	core.StateSubmitted:       {core.StateOpen, core.StateRejected, core.StateFailed},
	core.StateOpen:            {core.StatePartiallyFilled, core.StateFilled, core.StateCancelled, core.StateFailed},
	core.StatePartiallyFilled: {core.StatePartiallyFilled, core.StateFilled, core.StateCancelled, core.StateFailed},
}

func isValidTransition(from, to core.OrderState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PlaceOrder submits a new order and tracks it. The record starts in
// Submitted; an exchange refusal moves it to Rejected and surfaces the
// rejection — it never reaches Open. Transport failures move it to
// Failed. The input request is not mutated.
func (m *Manager) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OrderRecord, error) {
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = m.GenerateClientOrderID()
	}
	if len(clientID) > MaxClientOrderIDLen {
		return nil, fmt.Errorf("client order id %q exceeds %d characters", clientID, MaxClientOrderIDLen)
	}

	now := time.Now().UTC()
	tracked := &trackedOrder{
		record: core.OrderRecord{
			ClientOrderID: clientID,
			Pair:          req.Pair,
			Side:          req.Side,
			State:         core.StateSubmitted,
			Price:         req.Price,
			Amount:        req.Amount,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		seenTrades: make(map[string]bool),
	}

	m.mu.Lock()
	if _, exists := m.orders[clientID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("client order id %q already tracked", clientID)
	}
	m.orders[clientID] = tracked
	m.mu.Unlock()

	ack, err := m.connector.PlaceOrder(ctx, req)
	if err != nil {
		if core.IsOrderRejectedError(err) {
			m.transition(tracked, core.StateRejected, "")
		} else {
			m.transition(tracked, core.StateFailed, "")
		}
		return nil, err
	}

	m.transition(tracked, core.StateOpen, ack.ExchangeOrderID)
	record := m.snapshot(tracked)
	return &record, nil
}

// CancelOrder submits a cancel for a tracked order. A record already
// terminal yields (false, nil) without touching the exchange. An
// unacknowledged cancel (order already filled or unknown remotely) is
// also (false, nil); the record is left for fill reconciliation to
// resolve.
func (m *Manager) CancelOrder(ctx context.Context, clientOrderID string) (bool, error) {
	tracked, err := m.lookup(clientOrderID)
	if err != nil {
		return false, err
	}

	tracked.mu.Lock()
	if tracked.record.State.IsTerminal() {
		tracked.mu.Unlock()
		return false, nil
	}
	pair := tracked.record.Pair
	exchangeID := tracked.record.ExchangeOrderID
	tracked.mu.Unlock()

	if exchangeID == "" {
		return false, fmt.Errorf("order %s has no exchange id yet", clientOrderID)
	}

	acked, err := m.connector.CancelOrder(ctx, &exchange.CancelRequest{
		Pair:            pair,
		ExchangeOrderID: exchangeID,
	})
	if err != nil {
		return false, err
	}
	if !acked {
		return false, nil
	}

	m.transition(tracked, core.StateCancelled, "")
	return true, nil
}

// ReconcileFills fetches the order's trade history and applies fills not
// seen before. Re-fetching is idempotent: a trade id already recorded is
// skipped, and fills arriving for a terminal record are ignored without
// reviving it. Returns only the newly applied fills.
func (m *Manager) ReconcileFills(ctx context.Context, clientOrderID string) ([]core.Fill, error) {
	tracked, err := m.lookup(clientOrderID)
	if err != nil {
		return nil, err
	}

	tracked.mu.Lock()
	exchangeID := tracked.record.ExchangeOrderID
	tracked.mu.Unlock()
	if exchangeID == "" {
		return nil, fmt.Errorf("order %s has no exchange id yet", clientOrderID)
	}

	fills, err := m.connector.GetOrderFills(ctx, &exchange.FillQuery{
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: exchangeID,
	})
	if err != nil {
		return nil, err
	}

	tracked.mu.Lock()
	defer tracked.mu.Unlock()

	var applied []core.Fill
	var stateChanged bool
	for _, fill := range fills {
		if tracked.seenTrades[fill.TradeID] {
			continue
		}
		tracked.seenTrades[fill.TradeID] = true

		if tracked.record.State.IsTerminal() {
			m.logger.Debug().
				Str("client_order_id", clientOrderID).
				Str("trade_id", fill.TradeID).
				Str("state", tracked.record.State.String()).
				Msg("fill ignored for terminal order")
			continue
		}

		tracked.fills = append(tracked.fills, fill)
		applied = append(applied, fill)

		var filled apd.Decimal
		if _, err := apd.BaseContext.Add(&filled, &tracked.record.FilledAmount, &fill.BaseAmount); err != nil {
			return applied, fmt.Errorf("accumulate fill: %w", err)
		}
		tracked.record.FilledAmount = filled

		next := core.StatePartiallyFilled
		if tracked.record.FilledAmount.Cmp(&tracked.record.Amount) >= 0 {
			next = core.StateFilled
		}
		if isValidTransition(tracked.record.State, next) {
			tracked.record.State = next
			tracked.record.UpdatedAt = time.Now().UTC()
			stateChanged = true
		}
	}

	if stateChanged {
		m.notify(tracked.record)
	}
	return applied, nil
}

// Fail marks a non-terminal order Failed after an unrecoverable transport
// error. A terminal record is left untouched.
func (m *Manager) Fail(clientOrderID string) error {
	tracked, err := m.lookup(clientOrderID)
	if err != nil {
		return err
	}
	if !m.transition(tracked, core.StateFailed, "") {
		return core.ErrTerminalState
	}
	return nil
}

// Ack acknowledges a terminal record and evicts it from the active set.
// Acknowledging a live order is an error; the host must wait for a
// terminal state first.
func (m *Manager) Ack(clientOrderID string) error {
	tracked, err := m.lookup(clientOrderID)
	if err != nil {
		return err
	}

	tracked.mu.Lock()
	terminal := tracked.record.State.IsTerminal()
	tracked.mu.Unlock()
	if !terminal {
		return fmt.Errorf("order %s is still active", clientOrderID)
	}

	m.mu.Lock()
	delete(m.orders, clientOrderID)
	m.mu.Unlock()
	return nil
}

// GetOrder returns a copy of the tracked record.
func (m *Manager) GetOrder(clientOrderID string) (core.OrderRecord, bool) {
	tracked, err := m.lookup(clientOrderID)
	if err != nil {
		return core.OrderRecord{}, false
	}
	return m.snapshot(tracked), true
}

// Fills returns a copy of the order's applied fill history.
func (m *Manager) Fills(clientOrderID string) []core.Fill {
	tracked, err := m.lookup(clientOrderID)
	if err != nil {
		return nil
	}
	tracked.mu.Lock()
	defer tracked.mu.Unlock()
	out := make([]core.Fill, len(tracked.fills))
	copy(out, tracked.fills)
	return out
}

// ActiveOrders returns copies of all non-terminal records.
func (m *Manager) ActiveOrders() []core.OrderRecord {
	m.mu.RLock()
	tracked := make([]*trackedOrder, 0, len(m.orders))
	for _, t := range m.orders {
		tracked = append(tracked, t)
	}
	m.mu.RUnlock()

	var out []core.OrderRecord
	for _, t := range tracked {
		t.mu.Lock()
		if !t.record.State.IsTerminal() {
			out = append(out, t.record)
		}
		t.mu.Unlock()
	}
	return out
}

// GenerateClientOrderID produces a fresh prefixed id within the length
// bound.
func (m *Manager) GenerateClientOrderID() string {
	buf := make([]byte, (MaxClientOrderIDLen-len(m.idPrefix))/2)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to a timestamp id; uniqueness is enforced at PlaceOrder.
		return fmt.Sprintf("%s%d", m.idPrefix, time.Now().UnixNano())[:MaxClientOrderIDLen]
	}
	return m.idPrefix + hex.EncodeToString(buf)
}

func (m *Manager) lookup(clientOrderID string) (*trackedOrder, error) {
	m.mu.RLock()
	tracked, ok := m.orders[clientOrderID]
	m.mu.RUnlock()
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("order %q is not tracked", clientOrderID))
	}
	return tracked, nil
}

// transition applies a state change under the record lock. Returns false
// when the state machine forbids it; terminal states admit nothing.
func (m *Manager) transition(tracked *trackedOrder, to core.OrderState, exchangeID string) bool {
	tracked.mu.Lock()
	if !isValidTransition(tracked.record.State, to) {
		tracked.mu.Unlock()
		return false
	}
	from := tracked.record.State
	tracked.record.State = to
	if exchangeID != "" {
		tracked.record.ExchangeOrderID = exchangeID
	}
	tracked.record.UpdatedAt = time.Now().UTC()
	record := tracked.record
	tracked.mu.Unlock()

	m.logger.Debug().
		Str("client_order_id", record.ClientOrderID).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("order state changed")
	m.notify(record)
	return true
}

func (m *Manager) snapshot(tracked *trackedOrder) core.OrderRecord {
	tracked.mu.Lock()
	defer tracked.mu.Unlock()
	return tracked.record
}

func (m *Manager) notify(record core.OrderRecord) {
	m.callbacksMu.RLock()
	callbacks := make([]UpdateCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		cb(record)
	}
}
