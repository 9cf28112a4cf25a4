package keyring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeKeys() []*APIKey {
	return []*APIKey{
		{ID: "a", Key: "key-a", Secret: "secret-a"},
		{ID: "b", Key: "key-b", Secret: "secret-b"},
		{ID: "c", Key: "key-c", Secret: "secret-c"},
	}
}

func TestKeyRing_CurrentAndRotate(t *testing.T) {
	ring := NewKeyRing(threeKeys(), RotationRoundRobin)

	require.NotNil(t, ring.Current())
	assert.Equal(t, "a", ring.Current().ID)

	ring.Rotate()
	assert.Equal(t, "b", ring.Current().ID)
	ring.Rotate()
	assert.Equal(t, "c", ring.Current().ID)
	ring.Rotate()
	assert.Equal(t, "a", ring.Current().ID)
}

func TestKeyRing_Empty(t *testing.T) {
	ring := NewKeyRing(nil, RotationRoundRobin)
	assert.Nil(t, ring.Current())

	// None of these may panic on an empty ring.
	ring.Rotate()
	ring.OnError(errors.New("boom"))
	ring.MarkUsed()
}

func TestKeyRing_SkipsDisabled(t *testing.T) {
	ring := NewKeyRing(threeKeys(), RotationRoundRobin)
	ring.Disable("a")

	assert.Equal(t, "b", ring.Current().ID)

	ring.Disable("b")
	ring.Disable("c")
	assert.Nil(t, ring.Current())

	ring.Enable("b")
	assert.Equal(t, "b", ring.Current().ID)
	assert.Equal(t, 0, ring.Current().ErrorCount)
}

func TestKeyRing_OnErrorRotates(t *testing.T) {
	ring := NewKeyRing(threeKeys(), RotationOnError)

	ring.OnError(errors.New("401"))
	assert.Equal(t, "b", ring.Current().ID)

	// Round-robin strategy does not rotate on error.
	fixed := NewKeyRing(threeKeys(), RotationRoundRobin)
	fixed.OnError(errors.New("401"))
	assert.Equal(t, "a", fixed.Current().ID)
	assert.Equal(t, 1, fixed.Current().ErrorCount)
}

func TestKeyRing_CopiesInput(t *testing.T) {
	keys := threeKeys()
	ring := NewKeyRing(keys, RotationRoundRobin)

	keys[0].Disabled = true
	assert.Equal(t, "a", ring.Current().ID)
}

func TestKeyRing_AddRemove(t *testing.T) {
	ring := NewKeyRing(threeKeys(), RotationRoundRobin)

	ring.Add(&APIKey{ID: "a", Key: "dup"})
	ring.Add(&APIKey{ID: "d", Key: "key-d"})
	ring.Remove("a")
	ring.Remove("missing")

	assert.Equal(t, "b", ring.Current().ID)
}

func TestAPIKey_StringMasksSecret(t *testing.T) {
	key := &APIKey{ID: "a", Key: "0123456789abcdef", Secret: "topsecret"}
	s := key.String()
	assert.Contains(t, s, "0123****cdef")
	assert.NotContains(t, s, "topsecret")
	assert.NotContains(t, s, "0123456789abcdef")

	short := &APIKey{ID: "b", Key: "abc"}
	assert.Contains(t, short.String(), "****")
}
