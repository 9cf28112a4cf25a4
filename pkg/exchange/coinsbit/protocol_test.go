package coinsbit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsbridge/pkg/core"
)

func newTestProtocol(t *testing.T) *Protocol {
	t.Helper()
	signer, err := NewSigner(&core.Credentials{APIKey: "key", SecretKey: "secret"})
	require.NoError(t, err)
	p := NewProtocol(signer)
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return p
}

func TestProtocol_BuildRequest(t *testing.T) {
	p := newTestProtocol(t)

	tests := []struct {
		op     core.Operation
		params map[string]string
		method string
		path   string
		auth   bool
	}{
		{core.OpGetMarkets, nil, http.MethodGet, MarketsPath, false},
		{core.OpGetTicker, map[string]string{"market": "BTC_USDT"}, http.MethodGet, TickerPath, false},
		{core.OpGetTickers, nil, http.MethodGet, TickersPath, false},
		{core.OpGetOrderBook, map[string]string{"market": "BTC_USDT"}, http.MethodGet, DepthPath, false},
		{core.OpGetBalances, nil, http.MethodPost, AccountBalancesPath, true},
		{core.OpPlaceOrder, map[string]string{"market": "BTC_USDT", "side": "buy", "amount": "1", "price": "2"}, http.MethodPost, CreateOrderPath, true},
		{core.OpCancelOrder, map[string]string{"market": "BTC_USDT", "orderId": "5"}, http.MethodPost, CancelOrderPath, true},
		{core.OpGetAccountTrades, map[string]string{"orderId": "5"}, http.MethodGet, AccountTradesPath, true},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			req, err := p.BuildRequest(tt.op, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.path, req.Path)
			assert.Equal(t, tt.auth, req.RequireAuth)
			assert.Equal(t, tt.path, req.LimitID)
		})
	}
}

func TestProtocol_BuildRequest_OrderBookDefaultLimit(t *testing.T) {
	p := newTestProtocol(t)

	req, err := p.BuildRequest(core.OpGetOrderBook, map[string]string{"market": "BTC_USDT"})
	require.NoError(t, err)
	assert.Equal(t, "100", req.Query["limit"])
	assert.Equal(t, "BTC_USDT", req.Query["market"])
}

func TestProtocol_SignRequest(t *testing.T) {
	p := newTestProtocol(t)

	req, err := p.BuildRequest(core.OpPlaceOrder, map[string]string{
		"market": "BTC_USDT", "side": "buy", "amount": "0.001", "price": "50000",
	})
	require.NoError(t, err)
	require.NoError(t, p.SignRequest(req))

	// Signing folds the path and a nonce into the signed parameter set.
	assert.Equal(t, apiPrefix+CreateOrderPath, req.Body["request"])
	assert.Equal(t, "1700000000000", req.Body["nonce"])

	assert.Equal(t, "key", req.Headers[HeaderAPIKey])
	assert.NotEmpty(t, req.Headers[HeaderPayload])
	assert.NotEmpty(t, req.Headers[HeaderSignature])
}

func TestProtocol_SignRequest_PublicNoop(t *testing.T) {
	p := newTestProtocol(t)

	req, err := p.BuildRequest(core.OpGetMarkets, nil)
	require.NoError(t, err)
	require.NoError(t, p.SignRequest(req))
	assert.Empty(t, req.Headers)
}

func TestProtocol_SignRequest_NoSigner(t *testing.T) {
	p := NewProtocol(nil)

	req, err := p.BuildRequest(core.OpGetBalances, nil)
	require.NoError(t, err)

	err = p.SignRequest(req)
	assert.True(t, core.IsConfigurationError(err))
}

func TestProtocol_ParseResponse(t *testing.T) {
	p := newTestProtocol(t)

	result, err := p.ParseResponse([]byte(`{"success":true,"message":"","result":{"foo":"bar"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"foo":"bar"}`, string(result))
}

func TestProtocol_ParseResponse_Refusal(t *testing.T) {
	p := newTestProtocol(t)

	_, err := p.ParseResponse([]byte(`{"success":false,"message":"balance not enough","result":null}`))
	require.Error(t, err)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeExchangeRefusal))
	assert.Contains(t, err.Error(), "balance not enough")
}

func TestProtocol_ParseResponse_MissingSuccessFlag(t *testing.T) {
	p := newTestProtocol(t)

	// A response without a success indicator is a refusal, never trusted.
	_, err := p.ParseResponse([]byte(`{"result":[1,2,3]}`))
	assert.True(t, core.IsErrorCode(err, core.ErrCodeExchangeRefusal))
}

func TestProtocol_ParseResponse_Malformed(t *testing.T) {
	p := newTestProtocol(t)

	_, err := p.ParseResponse([]byte(`not json`))
	assert.True(t, core.IsMalformedMessageError(err))
}
