package coinsbit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"coinsbridge/internal/circuitbreaker"
	httpclient "coinsbridge/internal/http"
	"coinsbridge/internal/keyring"
	"coinsbridge/internal/ratelimit"
	"coinsbridge/pkg/core"
	"coinsbridge/pkg/exchange"
)

// Exchange implements the Connector interface for Coinsbit. It wires the
// HTTP transport, per-path rate limiting, circuit breaking, and optional
// API key rotation around the protocol and normalization layers.
type Exchange struct {
	config         *core.Config
	keyRing        *keyring.KeyRing
	httpClient     *httpclient.Client
	rateLimiter    *ratelimit.RateLimiter
	circuitBreaker *circuitbreaker.Breaker
	logger         zerolog.Logger
	symbols        *SymbolMapper
	normalizer     *Normalizer
	protocol       *Protocol
}

// Option is a functional option for configuring the Exchange.
type Option func(*Options)

// Options holds construction options for the Exchange.
type Options struct {
	KeyRing *keyring.KeyRing
	Logger  zerolog.Logger
}

// WithKeyRing returns an option that sets the API key ring for rotation.
func WithKeyRing(kr *keyring.KeyRing) Option {
	return func(o *Options) {
		o.KeyRing = kr
	}
}

// WithLogger returns an option that sets the logger for the exchange.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// New creates an Exchange from the given configuration. The rate limiter
// starts with the session-wide default budget plus the tighter published
// budgets for individual paths.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	client, err := httpclient.NewClient(&httpclient.Config{
		BaseURL:      restURL(config.Domain),
		Timeout:      config.Timeout,
		MaxRetries:   config.MaxRetries,
		RetryWaitMin: config.RetryWaitMin,
		RetryWaitMax: config.RetryWaitMax,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	client.SetLogger(options.Logger)

	var rl *ratelimit.RateLimiter
	if config.RateLimitRequests > 0 {
		rl = ratelimit.New(config.RateLimitRequests, config.RateLimitPeriod)
		for path, budget := range pathBudgets {
			rl.SetBucketLimit(path, budget, config.RateLimitPeriod)
		}
	}

	var cb *circuitbreaker.Breaker
	if config.CircuitBreakerEnabled {
		cb = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		})
	}

	// Without a key ring the credentials are fixed for the session, so
	// the protocol (and its signer) can be built once.
	var protocol *Protocol
	if options.KeyRing == nil {
		signer, err := NewSigner(config.Credentials)
		if err != nil {
			signer = nil
		}
		protocol = NewProtocol(signer)
	}

	symbols := NewSymbolMapper()
	return &Exchange{
		protocol:       protocol,
		config:         config,
		keyRing:        options.KeyRing,
		httpClient:     client,
		rateLimiter:    rl,
		circuitBreaker: cb,
		logger:         options.Logger,
		symbols:        symbols,
		normalizer:     NewNormalizer(WithSymbolMapper(symbols)),
	}, nil
}

func restURL(domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return fmt.Sprintf(restURLFormat, domain)
}

func wsURL(domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return fmt.Sprintf(wssURLFormat, domain)
}

// Name returns the exchange identifier.
func (e *Exchange) Name() string {
	return ExchangeName
}

// Domain returns the deployment TLD this session talks to.
func (e *Exchange) Domain() string {
	return e.config.Domain
}

// Symbols exposes the mapper for collaborators (session, order manager).
func (e *Exchange) Symbols() *SymbolMapper {
	return e.symbols
}

// Normalizer exposes the wire translator for the push-channel session.
func (e *Exchange) Normalizer() *Normalizer {
	return e.normalizer
}

// Close releases the HTTP transport.
func (e *Exchange) Close() error {
	return e.httpClient.Close()
}

// GetMarkets retrieves the exchange market listing.
func (e *Exchange) GetMarkets(ctx context.Context) ([]core.Market, error) {
	result, err := e.execute(ctx, core.OpGetMarkets, nil)
	if err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeMarkets(result)
}

// RefreshSymbols fetches the market listing and rebuilds the symbol map
// wholesale. On fetch or parse error the prior map is left intact.
func (e *Exchange) RefreshSymbols(ctx context.Context) (int, error) {
	markets, err := e.GetMarkets(ctx)
	if err != nil {
		return 0, err
	}
	count := e.symbols.Rebuild(markets)
	e.logger.Debug().Int("markets", count).Msg("symbol map rebuilt")
	return count, nil
}

// GetTicker retrieves the ticker for one pair.
func (e *Exchange) GetTicker(ctx context.Context, pair core.TradingPair) (*core.Ticker, error) {
	market, err := e.symbols.Resolve(pair)
	if err != nil {
		return nil, err
	}
	result, err := e.execute(ctx, core.OpGetTicker, map[string]string{"market": market})
	if err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeTicker(result, pair, time.Now().UTC())
}

// GetLastPrice retrieves the last traded price for one pair.
func (e *Exchange) GetLastPrice(ctx context.Context, pair core.TradingPair) (apd.Decimal, error) {
	ticker, err := e.GetTicker(ctx, pair)
	if err != nil {
		return apd.Decimal{}, err
	}
	return ticker.Last, nil
}

// GetAllLastPrices retrieves the last traded price for every market the
// symbol map knows. Markets absent from the map are skipped.
func (e *Exchange) GetAllLastPrices(ctx context.Context) (map[core.TradingPair]apd.Decimal, error) {
	result, err := e.execute(ctx, core.OpGetTickers, nil)
	if err != nil {
		return nil, err
	}
	native, err := e.normalizer.NormalizeLastPrices(result)
	if err != nil {
		return nil, err
	}

	prices := make(map[core.TradingPair]apd.Decimal, len(native))
	for market, last := range native {
		pair, err := e.symbols.ResolveReverse(market)
		if err != nil {
			continue
		}
		prices[pair] = last
	}
	return prices, nil
}

// GetOrderBookSnapshot retrieves a full order-book snapshot for the pair.
// The fetch time seeds the sequence baseline for subsequent diffs.
func (e *Exchange) GetOrderBookSnapshot(ctx context.Context, pair core.TradingPair, opts ...exchange.Option) (*core.BookEvent, error) {
	options := exchange.ApplyOptions(opts...)

	market, err := e.symbols.Resolve(pair)
	if err != nil {
		return nil, err
	}
	params := map[string]string{"market": market}
	if options.Limit > 0 {
		params["limit"] = fmt.Sprint(options.Limit)
	}

	result, err := e.execute(ctx, core.OpGetOrderBook, params)
	if err != nil {
		return nil, err
	}
	event, err := e.normalizer.NormalizeSnapshot(result, pair, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetBalances retrieves the account balance snapshot.
func (e *Exchange) GetBalances(ctx context.Context) (core.BalanceSnapshot, error) {
	result, err := e.execute(ctx, core.OpGetBalances, nil)
	if err != nil {
		return core.BalanceSnapshot{}, err
	}
	return e.normalizer.NormalizeBalances(result)
}

// PlaceOrder submits a limit order. An exchange refusal is surfaced as an
// order rejection carrying the raw label and message; the caller must not
// assume the order reached the book.
func (e *Exchange) PlaceOrder(ctx context.Context, req *core.OrderRequest, opts ...exchange.Option) (*exchange.OrderAck, error) {
	if req.Amount.Sign() <= 0 || req.Price.Sign() <= 0 {
		return nil, core.NewOrderRejectedError("invalid_request", "amount and price must be positive")
	}

	market, err := e.symbols.Resolve(req.Pair)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"market": market,
		"side":   req.Side.Wire(),
		"amount": req.Amount.Text('f'),
		"price":  req.Price.Text('f'),
	}
	result, err := e.execute(ctx, core.OpPlaceOrder, params)
	if err != nil {
		var cerr *core.ConnectorError
		if errors.As(err, &cerr) && core.ErrorCode(cerr.Code) == core.ErrCodeExchangeRefusal {
			return nil, core.NewOrderRejectedError(cerr.Code, cerr.Message).WithRaw(cerr.Raw)
		}
		return nil, err
	}

	orderID, transactTime, err := e.normalizer.NormalizeOrderAck(result)
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("market", market).
		Str("order_id", orderID).
		Str("side", req.Side.String()).
		Msg("order placed")
	return &exchange.OrderAck{ExchangeOrderID: orderID, TransactTime: transactTime}, nil
}

// CancelOrder submits a cancel for an existing order. A refusal from the
// exchange (order already filled or unknown) is reported as false, not an
// error; only transport and protocol failures return one.
func (e *Exchange) CancelOrder(ctx context.Context, req *exchange.CancelRequest, opts ...exchange.Option) (bool, error) {
	market, err := e.symbols.Resolve(req.Pair)
	if err != nil {
		return false, err
	}

	params := map[string]string{
		"market":  market,
		"orderId": req.ExchangeOrderID,
	}
	if _, err := e.execute(ctx, core.OpCancelOrder, params); err != nil {
		if core.IsErrorCode(err, core.ErrCodeExchangeRefusal) {
			e.logger.Debug().
				Str("order_id", req.ExchangeOrderID).
				Str("reason", err.Error()).
				Msg("cancel not acknowledged")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetOrderFills retrieves the trade history of one order and attributes
// each record to the order's ids. Deduplication against previously seen
// trade ids is the order manager's job.
func (e *Exchange) GetOrderFills(ctx context.Context, query *exchange.FillQuery, opts ...exchange.Option) ([]core.Fill, error) {
	result, err := e.execute(ctx, core.OpGetAccountTrades, map[string]string{"orderId": query.ExchangeOrderID})
	if err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeFills(result, query.ClientOrderID, query.ExchangeOrderID)
}

// execute runs one operation end to end: build, throttle, sign, send,
// unwrap. The returned bytes are the envelope's result payload.
func (e *Exchange) execute(ctx context.Context, op core.Operation, params map[string]string) ([]byte, error) {
	req, err := e.protocolFor().BuildRequest(op, params)
	if err != nil {
		return nil, err
	}

	resp, err := e.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.protocolFor().ParseResponse(resp.Bytes())
}

// protocolFor returns the protocol bound to the current credentials. With
// a key ring attached the signer follows rotation; otherwise the fixed
// session protocol built at construction is reused. A protocol without a
// signer fails authenticated requests at SignRequest with a configuration
// error.
func (e *Exchange) protocolFor() *Protocol {
	if e.keyRing == nil {
		return e.protocol
	}

	key := e.keyRing.Current()
	if key == nil {
		return NewProtocol(nil)
	}
	signer, err := NewSigner(&core.Credentials{
		APIKey:         key.Key,
		SecretKey:      key.Secret,
		WebsocketToken: key.WebsocketToken,
	})
	if err != nil {
		return NewProtocol(nil)
	}
	e.keyRing.MarkUsed()
	return NewProtocol(signer)
}

func (e *Exchange) doRequest(ctx context.Context, req *core.Request) (*resty.Response, error) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.WaitBucket(ctx, req.LimitID); err != nil {
			return nil, core.NewErrorWithCode(core.ErrorTypeRateLimit, core.ErrCodeRateLimit, err.Error())
		}
	}
	if e.circuitBreaker != nil && !e.circuitBreaker.Allow() {
		return nil, core.NewErrorWithCode(core.ErrorTypeNetwork, core.ErrCodeNetwork, "circuit breaker open")
	}

	if req.RequireAuth {
		if err := e.protocolFor().SignRequest(req); err != nil {
			return nil, err
		}
	}

	var resp *resty.Response
	var err error
	switch req.Method {
	case http.MethodGet:
		resp, err = e.httpClient.Get(ctx, req.Path,
			httpclient.WithQueryParams(req.Query),
			httpclient.WithHeaders(req.Headers))
	case http.MethodPost:
		// The body is the exact canonical encoding the signature covers.
		resp, err = e.httpClient.PostForm(ctx, req.Path, CanonicalEncode(req.Body),
			httpclient.WithHeaders(req.Headers))
	default:
		return nil, fmt.Errorf("unsupported method: %s", req.Method)
	}

	success := err == nil && resp != nil && !resp.IsError()
	if e.circuitBreaker != nil {
		e.circuitBreaker.Record(success)
	}
	if err != nil {
		return nil, core.NewErrorWithCode(core.ErrorTypeNetwork, core.ErrCodeNetwork, err.Error())
	}
	if resp.IsError() {
		return nil, e.classifyHTTPError(req, resp)
	}
	return resp, nil
}

func (e *Exchange) classifyHTTPError(req *core.Request, resp *resty.Response) error {
	status := resp.StatusCode()
	msg := fmt.Sprintf("%s %s: status %d", req.Method, req.Path, status)

	var cerr *core.ConnectorError
	switch {
	case status == http.StatusTooManyRequests:
		cerr = core.NewErrorWithCode(core.ErrorTypeRateLimit, core.ErrCodeRateLimit, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		cerr = core.NewErrorWithCode(core.ErrorTypeAuthentication, core.ErrCodeAuth, msg)
	case status >= 500:
		cerr = core.NewErrorWithCode(core.ErrorTypeServerError, core.ErrCodeServerError, msg)
	default:
		cerr = core.NewError(core.ErrorTypeUnknown, msg)
	}

	if e.keyRing != nil && (cerr.Type == core.ErrorTypeAuthentication || cerr.Type == core.ErrorTypeRateLimit) {
		e.keyRing.OnError(cerr)
	}
	return cerr.WithRaw(string(resp.Bytes()))
}
