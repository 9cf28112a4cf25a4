package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"coinsbridge/pkg/core"
	"coinsbridge/pkg/exchange/coinsbit"
	"coinsbridge/pkg/stream"
)

// State represents the lifecycle state of a Session.
type State int

const (
	// StateNew indicates a newly created session that has not been started.
	StateNew State = iota
	// StateActive indicates a running session delivering events.
	StateActive
	// StateClosed indicates a session that has been shut down.
	StateClosed
)

// String returns the string representation of the State.
func (s State) String() string {
	return [...]string{"NEW", "ACTIVE", "CLOSED"}[s]
}

// Config holds session settings.
type Config struct {
	// BufferSize is the capacity of the event channel. When the host
	// falls behind, further events are dropped and counted rather than
	// stalling the read loop.
	BufferSize int
	// HeartbeatInterval overrides the exchange's fixed ping cadence.
	// Zero means the exchange default.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns session defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:        1024,
		HeartbeatInterval: coinsbit.WSHeartbeatInterval,
	}
}

// Metrics counts events and drops since the session started.
type Metrics struct {
	Delivered uint64
	Malformed uint64
	Stale     uint64
	Overflow  uint64
}

// Session owns the push-channel subscription lifecycle: it connects,
// authorizes with the websocket token when one is configured, holds the
// topic list, routes inbound frames through the normalizer and the
// sequencer, and emits canonical book events on a channel. It parses no
// payloads itself. On reconnect the transport re-dials and the session
// re-authorizes and resubscribes every held topic.
type Session struct {
	config     Config
	ws         *coinsbit.WSClient
	normalizer *coinsbit.Normalizer
	symbols    *coinsbit.SymbolMapper
	sequencer  *stream.Sequencer
	token      string
	logger     zerolog.Logger

	mu     sync.Mutex
	state  State
	topics map[core.TradingPair]string

	events chan core.BookEvent
	done   chan struct{}
	wg     sync.WaitGroup

	delivered atomic.Uint64
	malformed atomic.Uint64
	stale     atomic.Uint64
	overflow  atomic.Uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
		s.ws.SetLogger(logger)
	}
}

// WithWebsocketToken sets the push-channel authorization token. Without
// one the session serves public market-data topics only.
func WithWebsocketToken(token string) Option {
	return func(s *Session) {
		s.token = token
	}
}

// New creates a Session bound to the given exchange's symbol map and
// normalizer.
func New(ex *coinsbit.Exchange, config Config, opts ...Option) *Session {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = coinsbit.WSHeartbeatInterval
	}

	s := &Session{
		config:     config,
		ws:         coinsbit.NewWSClient(ex.Domain()),
		normalizer: ex.Normalizer(),
		symbols:    ex.Symbols(),
		sequencer:  stream.NewSequencer(),
		logger:     zerolog.Nop(),
		topics:     make(map[core.TradingPair]string),
		events:     make(chan core.BookEvent, config.BufferSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects the push channel and begins delivering events. It may
// be called once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNew {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("invalid state for start: %s", state)
	}
	s.state = StateActive
	s.mu.Unlock()

	s.ws.SetDepthHandler(s.handleDepth)
	s.ws.SetDealsHandler(s.handleDeals)
	s.ws.OnReconnect(s.resync)

	if err := s.ws.Connect(ctx); err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}

	if s.token != "" {
		if err := s.ws.Authorize(s.token); err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
	}

	s.wg.Add(1)
	go s.heartbeatLoop()
	return nil
}

// Subscribe adds a pair to the topic list and subscribes its depth and
// deals channels.
func (s *Session) Subscribe(pair core.TradingPair) error {
	market, err := s.symbols.Resolve(pair)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("invalid state for subscribe: %s", state)
	}
	s.topics[pair] = market
	s.mu.Unlock()

	if err := s.ws.SubscribeDepth(market); err != nil {
		return err
	}
	return s.ws.SubscribeDeals(market)
}

// Unsubscribe drops a pair from the topic list. Its sequencing baseline
// is forgotten so a later resubscribe starts fresh from a snapshot.
func (s *Session) Unsubscribe(pair core.TradingPair) {
	s.mu.Lock()
	delete(s.topics, pair)
	s.mu.Unlock()
	s.sequencer.Reset(pair)
}

// Topics returns the currently subscribed pairs.
func (s *Session) Topics() []core.TradingPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TradingPair, 0, len(s.topics))
	for pair := range s.topics {
		out = append(out, pair)
	}
	return out
}

// Events returns the canonical book-event channel. The channel closes
// when the session closes.
func (s *Session) Events() <-chan core.BookEvent {
	return s.events
}

// SeedSnapshot feeds a REST-fetched snapshot through the sequencer so
// subsequent diffs are ordered relative to it, and delivers it on the
// event channel.
func (s *Session) SeedSnapshot(event *core.BookEvent) error {
	if event.Type != core.EventSnapshot {
		return fmt.Errorf("seed requires a snapshot event, got %s", event.Type)
	}
	if err := s.sequencer.Apply(event); err != nil {
		return err
	}
	s.emit(*event)
	return nil
}

// State reports the session lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Metrics returns delivery and drop counters.
func (s *Session) Metrics() Metrics {
	return Metrics{
		Delivered: s.delivered.Load(),
		Malformed: s.malformed.Load(),
		Stale:     s.stale.Load(),
		Overflow:  s.overflow.Load(),
	}
}

// Close shuts the session down and closes the event channel.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()

	close(s.done)
	err := s.ws.Close()
	s.wg.Wait()
	close(s.events)
	return err
}

func (s *Session) handleDepth(raw []byte) error {
	event, err := s.normalizer.NormalizeDiff(raw)
	if err != nil {
		s.malformed.Add(1)
		s.logger.Warn().Err(err).Msg("depth frame dropped")
		return nil
	}
	if !s.subscribed(event.Pair) {
		return nil
	}
	if err := s.sequencer.Apply(&event); err != nil {
		if errors.Is(err, core.ErrStaleEvent) {
			s.stale.Add(1)
			s.logger.Warn().Err(err).Msg("stale diff dropped")
			return nil
		}
		return err
	}
	s.emit(event)
	return nil
}

func (s *Session) handleDeals(raw []byte) error {
	events, err := s.normalizer.NormalizeTrade(raw, core.TradingPair{})
	if err != nil {
		s.malformed.Add(1)
		s.logger.Warn().Err(err).Msg("deals frame dropped")
		return nil
	}
	for _, event := range events {
		if !s.subscribed(event.Pair) {
			continue
		}
		s.emit(event)
	}
	return nil
}

func (s *Session) subscribed(pair core.TradingPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[pair]
	return ok
}

// emit delivers an event without blocking the read loop. A full buffer
// drops the event and counts it.
func (s *Session) emit(event core.BookEvent) {
	select {
	case s.events <- event:
		s.delivered.Add(1)
	default:
		s.overflow.Add(1)
		s.logger.Warn().
			Str("pair", event.Pair.String()).
			Str("type", event.Type.String()).
			Msg("event buffer full, dropping")
	}
}

// resync runs after the transport re-dials: re-authorize and resubscribe
// every held topic. Sequencing baselines are reset so the host reseeds
// snapshots before trusting diffs again.
func (s *Session) resync() {
	if s.token != "" {
		if err := s.ws.Authorize(s.token); err != nil {
			s.logger.Error().Err(err).Msg("re-authorize failed")
		}
	}

	s.mu.Lock()
	topics := make(map[core.TradingPair]string, len(s.topics))
	for pair, market := range s.topics {
		topics[pair] = market
	}
	s.mu.Unlock()

	for pair, market := range topics {
		s.sequencer.Reset(pair)
		if err := s.ws.SubscribeDepth(market); err != nil {
			s.logger.Error().Err(err).Str("market", market).Msg("resubscribe depth failed")
			continue
		}
		if err := s.ws.SubscribeDeals(market); err != nil {
			s.logger.Error().Err(err).Str("market", market).Msg("resubscribe deals failed")
		}
	}
	s.logger.Info().Int("topics", len(topics)).Msg("session resynced")
}

func (s *Session) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.ws.IsConnected() {
				continue
			}
			if err := s.ws.Heartbeat(); err != nil {
				s.logger.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}
