package stream

import (
	"fmt"
	"sync"

	"coinsbridge/pkg/core"
)

// Sequencer enforces per-pair ordering of book events. Diffs must advance
// strictly past the last applied event for their pair, relative to the
// last snapshot; a diff that does not is rejected with a stale-event
// error and must be dropped by the caller. Snapshots always apply and
// reset the baseline. Trades carry no book state and pass through.
type Sequencer struct {
	mu   sync.Mutex
	last map[core.TradingPair]int64
}

func NewSequencer() *Sequencer {
	return &Sequencer{
		last: make(map[core.TradingPair]int64),
	}
}

// Apply admits or rejects one event. On rejection the sequencer state is
// unchanged.
func (s *Sequencer) Apply(event *core.BookEvent) error {
	switch event.Type {
	case core.EventSnapshot:
		s.mu.Lock()
		s.last[event.Pair] = event.Sequence
		s.mu.Unlock()
		return nil
	case core.EventDiff:
		s.mu.Lock()
		defer s.mu.Unlock()
		if last, ok := s.last[event.Pair]; ok && event.Sequence <= last {
			return fmt.Errorf("%w: %s sequence %d, last applied %d",
				core.ErrStaleEvent, event.Pair, event.Sequence, last)
		}
		s.last[event.Pair] = event.Sequence
		return nil
	default:
		return nil
	}
}

// Last reports the last applied sequence for a pair.
func (s *Sequencer) Last(pair core.TradingPair) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.last[pair]
	return seq, ok
}

// Reset forgets the baseline for a pair. Used when a subscription is torn
// down so a later resubscribe starts fresh from its snapshot.
func (s *Sequencer) Reset(pair core.TradingPair) {
	s.mu.Lock()
	delete(s.last, pair)
	s.mu.Unlock()
}
