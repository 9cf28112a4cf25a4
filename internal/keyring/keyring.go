package keyring

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// KeyRing rotates between multiple API credential sets. Useful when one
// account's per-key budgets are too tight for the session's call volume.
type KeyRing struct {
	mu       sync.RWMutex
	keys     []*APIKey
	current  int
	strategy RotationStrategy
	logger   zerolog.Logger
}

// APIKey is one credential set. WebsocketToken authorizes the push
// channel for sessions signed with this key.
type APIKey struct {
	ID             string
	Key            string
	Secret         string
	WebsocketToken string
	Disabled       bool
	LastUsed       time.Time
	ErrorCount     int
}

// RotationStrategy selects when the ring advances to the next key.
type RotationStrategy int

const (
	RotationRoundRobin RotationStrategy = iota
	RotationOnError
	RotationOnRateLimit
)

func NewKeyRing(keys []*APIKey, strategy RotationStrategy) *KeyRing {
	keysCopy := make([]*APIKey, len(keys))
	for i, k := range keys {
		copied := *k
		keysCopy[i] = &copied
	}

	return &KeyRing{
		keys:     keysCopy,
		strategy: strategy,
		logger:   zerolog.Nop(),
	}
}

// SetLogger sets the logger used for rotation events.
func (k *KeyRing) SetLogger(logger zerolog.Logger) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.logger = logger
}

// Current returns the active key, skipping disabled entries. Nil when no
// usable key remains.
func (k *KeyRing) Current() *APIKey {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if len(k.keys) == 0 {
		return nil
	}

	for i := 0; i < len(k.keys); i++ {
		idx := (k.current + i) % len(k.keys)
		if !k.keys[idx].Disabled {
			return k.keys[idx]
		}
	}

	return nil
}

// Rotate advances to the next enabled key.
func (k *KeyRing) Rotate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rotateLocked()
}

func (k *KeyRing) rotateLocked() {
	if len(k.keys) == 0 {
		return
	}

	start := k.current
	for {
		k.current = (k.current + 1) % len(k.keys)
		if !k.keys[k.current].Disabled {
			k.logger.Debug().Str("key", k.keys[k.current].String()).Msg("rotated api key")
			return
		}
		if k.current == start {
			return
		}
	}
}

// OnError records a failure against the active key and rotates if the
// strategy calls for it.
func (k *KeyRing) OnError(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) == 0 || k.keys[k.current] == nil {
		return
	}

	k.keys[k.current].ErrorCount++

	if k.strategy == RotationOnError || k.strategy == RotationOnRateLimit {
		k.rotateLocked()
	}
}

// MarkUsed stamps the active key's last-used time.
func (k *KeyRing) MarkUsed() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) == 0 || k.keys[k.current] == nil {
		return
	}

	k.keys[k.current].LastUsed = time.Now()
}

func (k *KeyRing) Disable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, key := range k.keys {
		if key.ID == id {
			key.Disabled = true
			return
		}
	}
}

func (k *KeyRing) Enable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, key := range k.keys {
		if key.ID == id {
			key.Disabled = false
			key.ErrorCount = 0
			return
		}
	}
}

func (k *KeyRing) Add(key *APIKey) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, existing := range k.keys {
		if existing.ID == key.ID {
			return
		}
	}

	copied := *key
	k.keys = append(k.keys, &copied)
}

func (k *KeyRing) Remove(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, key := range k.keys {
		if key.ID == id {
			k.keys = append(k.keys[:i], k.keys[i+1:]...)
			if k.current >= len(k.keys) && len(k.keys) > 0 {
				k.current = 0
			}
			return
		}
	}
}

// String renders the key with its secret material masked.
func (k *APIKey) String() string {
	return fmt.Sprintf("APIKey{ID:%s, Key:%s}", k.ID, maskKey(k.Key))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
