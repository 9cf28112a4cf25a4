package coinsbit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"

	"coinsbridge/pkg/core"
)

// Authentication header names.
const (
	HeaderAPIKey    = "X-TXC-APIKEY"
	HeaderPayload   = "X-TXC-PAYLOAD"
	HeaderSignature = "X-TXC-SIGNATURE"
)

// Signer produces the exchange's authentication headers. The signature and
// the payload header are both derived from one canonical parameter
// encoding; the transport must transmit exactly that encoding, otherwise
// the exchange rejects the signature.
type Signer struct {
	apiKey    string
	secretKey string
}

// NewSigner creates a Signer. Fails with a configuration error if either
// credential is empty, before any network call can be attempted.
func NewSigner(creds *core.Credentials) (*Signer, error) {
	if creds == nil || creds.APIKey == "" || creds.SecretKey == "" {
		return nil, core.NewConfigurationError("api key and secret are required for signing")
	}
	return &Signer{
		apiKey:    creds.APIKey,
		secretKey: creds.SecretKey,
	}, nil
}

// CanonicalEncode encodes params deterministically: URL-encoded in sorted
// key order. This is the exact byte string both the signature and the
// payload header are computed over, and the exact string the transport
// sends for POST bodies.
func CanonicalEncode(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

// Sign returns the three authentication headers for the given parameters.
// isPost is accepted for symmetry with the wire contract; the canonical
// encoding is identical for both verbs.
func (s *Signer) Sign(params map[string]string, isPost bool) (map[string]string, error) {
	encoded := CanonicalEncode(params)

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(encoded))
	signature := hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		HeaderAPIKey:    s.apiKey,
		HeaderPayload:   base64.StdEncoding.EncodeToString([]byte(encoded)),
		HeaderSignature: signature,
	}, nil
}
