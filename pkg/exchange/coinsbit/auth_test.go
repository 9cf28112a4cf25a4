package coinsbit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsbridge/pkg/core"
)

func TestNewSigner_MissingCredentials(t *testing.T) {
	_, err := NewSigner(nil)
	assert.True(t, core.IsConfigurationError(err))

	_, err = NewSigner(&core.Credentials{APIKey: "key"})
	assert.True(t, core.IsConfigurationError(err))

	_, err = NewSigner(&core.Credentials{SecretKey: "secret"})
	assert.True(t, core.IsConfigurationError(err))
}

func TestSigner_Sign_Headers(t *testing.T) {
	signer, err := NewSigner(&core.Credentials{APIKey: "key", SecretKey: "secret"})
	require.NoError(t, err)

	params := map[string]string{
		"request": "/api/v1/order/new",
		"nonce":   "1700000000000",
		"market":  "BTC_USDT",
	}
	headers, err := signer.Sign(params, true)
	require.NoError(t, err)

	assert.Equal(t, "key", headers[HeaderAPIKey])

	encoded := CanonicalEncode(params)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(encoded)), headers[HeaderPayload])

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(encoded))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), headers[HeaderSignature])
}

func TestSigner_Sign_Deterministic(t *testing.T) {
	signer, err := NewSigner(&core.Credentials{APIKey: "key", SecretKey: "secret"})
	require.NoError(t, err)

	params := map[string]string{"b": "2", "a": "1", "c": "3"}

	first, err := signer.Sign(params, false)
	require.NoError(t, err)
	second, err := signer.Sign(params, false)
	require.NoError(t, err)

	assert.Equal(t, first[HeaderSignature], second[HeaderSignature])
	assert.Equal(t, first[HeaderPayload], second[HeaderPayload])
}

func TestSigner_Sign_KeyOrderIndependent(t *testing.T) {
	signer, err := NewSigner(&core.Credentials{APIKey: "key", SecretKey: "secret"})
	require.NoError(t, err)

	// Maps built in different insertion orders must sign identically.
	forward := map[string]string{}
	forward["market"] = "BTC_USDT"
	forward["side"] = "buy"
	forward["amount"] = "0.001"

	backward := map[string]string{}
	backward["amount"] = "0.001"
	backward["side"] = "buy"
	backward["market"] = "BTC_USDT"

	a, err := signer.Sign(forward, true)
	require.NoError(t, err)
	b, err := signer.Sign(backward, true)
	require.NoError(t, err)

	assert.Equal(t, a[HeaderSignature], b[HeaderSignature])
}

func TestCanonicalEncode_SortedAndEscaped(t *testing.T) {
	encoded := CanonicalEncode(map[string]string{
		"z":       "last",
		"a":       "first",
		"request": "/api/v1/account/balances",
	})
	assert.Equal(t, "a=first&request=%2Fapi%2Fv1%2Faccount%2Fbalances&z=last", encoded)
}
