package coinsbit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"coinsbridge/pkg/core"
)

// apiPrefix is the path prefix private requests must repeat inside the
// signed body ("request" parameter).
const apiPrefix = "/api/v1"

// Protocol builds wire requests and parses response envelopes for the
// exchange. It owns no transport; the exchange client executes what it
// builds.
type Protocol struct {
	signer *Signer
	now    func() time.Time
}

// NewProtocol creates a Protocol. signer may be nil for public-only use;
// building an authenticated request then fails with a configuration error.
func NewProtocol(signer *Signer) *Protocol {
	return &Protocol{signer: signer, now: time.Now}
}

// BuildRequest constructs the Request for an operation. params carries the
// operation's wire parameters (market, side, amount, price, orderId);
// unknown operations are a programming error.
func (p *Protocol) BuildRequest(op core.Operation, params map[string]string) (*core.Request, error) {
	switch op {
	case core.OpGetMarkets:
		return core.NewRequest(http.MethodGet, MarketsPath), nil
	case core.OpGetTicker:
		req := core.NewRequest(http.MethodGet, TickerPath)
		req.SetQuery("market", params["market"])
		return req, nil
	case core.OpGetTickers:
		return core.NewRequest(http.MethodGet, TickersPath), nil
	case core.OpGetOrderBook:
		req := core.NewRequest(http.MethodGet, DepthPath)
		req.SetQuery("market", params["market"])
		limit := params["limit"]
		if limit == "" {
			limit = strconv.Itoa(DefaultDepthLimit)
		}
		req.SetQuery("limit", limit)
		return req, nil
	case core.OpGetBalances:
		return core.NewRequest(http.MethodPost, AccountBalancesPath).SetRequireAuth(true), nil
	case core.OpPlaceOrder:
		req := core.NewRequest(http.MethodPost, CreateOrderPath).SetRequireAuth(true)
		req.SetBodyParam("market", params["market"])
		req.SetBodyParam("side", params["side"])
		req.SetBodyParam("amount", params["amount"])
		req.SetBodyParam("price", params["price"])
		return req, nil
	case core.OpCancelOrder:
		req := core.NewRequest(http.MethodPost, CancelOrderPath).SetRequireAuth(true)
		req.SetBodyParam("market", params["market"])
		req.SetBodyParam("orderId", params["orderId"])
		return req, nil
	case core.OpGetAccountTrades:
		req := core.NewRequest(http.MethodGet, AccountTradesPath).SetRequireAuth(true)
		req.SetQuery("orderId", params["orderId"])
		return req, nil
	default:
		return nil, fmt.Errorf("unsupported operation %s", op)
	}
}

// SignRequest stamps the request with its auth parameters and headers.
// The "request" path and a fresh nonce join the parameter set before
// signing, so the signature covers exactly what is transmitted. No-op for
// public requests.
func (p *Protocol) SignRequest(req *core.Request) error {
	if !req.RequireAuth {
		return nil
	}
	if p.signer == nil {
		return core.NewConfigurationError("authenticated endpoint requires credentials")
	}

	params := req.Params()
	params["request"] = apiPrefix + req.Path
	params["nonce"] = strconv.FormatInt(p.now().UnixMilli(), 10)

	headers, err := p.signer.Sign(params, req.Method == http.MethodPost)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	return nil
}

// responseEnvelope is the uniform REST response wrapper.
type responseEnvelope struct {
	Success bool            `json:"success"`
	Message json.RawMessage `json:"message"`
	Code    json.Number     `json:"code"`
	Result  json.RawMessage `json:"result"`
}

// ParseResponse unwraps the {success, message, result} envelope. A missing
// or false success flag is an explicit exchange refusal; for order
// placement the caller maps it to an order rejection.
func (p *Protocol) ParseResponse(body []byte) (json.RawMessage, error) {
	var env responseEnvelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, core.NewMalformedMessageError("response envelope: " + err.Error()).WithRaw(string(body))
	}
	if !env.Success {
		msg := string(env.Message)
		if msg == "" || msg == "null" {
			msg = "exchange reported failure without a message"
		}
		if env.Code != "" {
			msg = fmt.Sprintf("code %s: %s", env.Code, msg)
		}
		e := core.NewErrorWithCode(core.ErrorTypeServerError, core.ErrCodeExchangeRefusal, msg)
		return nil, e.WithRaw(string(body))
	}
	return env.Result, nil
}
