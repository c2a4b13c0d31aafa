package poloniex

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/testex/common/cache"
	"github.com/thrasher-corp/testex/exchanges/request"
	"go.uber.org/zap"
)

// DefaultUpstreamURL is the live venue's public API endpoint; every command
// goes through it as a query parameter
const DefaultUpstreamURL = "https://poloniex.com/public"

const cacheCapacity = 128

// Proxy passes public commands through to the real exchange, caching
// responses per command with TTLs matched to how fast the data goes stale.
// Reference data doubles as keyed maps used for request validation.
type Proxy struct {
	requester *request.Requester
	baseURL   string
	log       *zap.Logger

	tickerCache     *cache.TTL // 5s: fast movers
	volumeCache     *cache.TTL // 1h
	orderbookCache  *cache.TTL // 5s
	historyCache    *cache.TTL
	chartCache      *cache.TTL // 60s
	currenciesCache *cache.TTL // 1h: reference data
	loanCache       *cache.TTL // 60s

	tickersRefCache    *cache.TTL // parsed tickers map, 60s
	currenciesRefCache *cache.TTL // parsed currencies map, 1h
}

// NewProxy returns a proxy over the given upstream endpoint
func NewProxy(requester *request.Requester, baseURL string, log *zap.Logger) *Proxy {
	if baseURL == "" {
		baseURL = DefaultUpstreamURL
	}
	return &Proxy{
		requester:          requester,
		baseURL:            baseURL,
		log:                log,
		tickerCache:        cache.NewTTLCache(cacheCapacity, 5*time.Second),
		volumeCache:        cache.NewTTLCache(cacheCapacity, time.Hour),
		orderbookCache:     cache.NewTTLCache(cacheCapacity, 5*time.Second),
		historyCache:       cache.NewTTLCache(cacheCapacity, 5*time.Second),
		chartCache:         cache.NewTTLCache(cacheCapacity, time.Minute),
		currenciesCache:    cache.NewTTLCache(cacheCapacity, time.Hour),
		loanCache:          cache.NewTTLCache(cacheCapacity, time.Minute),
		tickersRefCache:    cache.NewTTLCache(cacheCapacity, time.Minute),
		currenciesRefCache: cache.NewTTLCache(cacheCapacity, time.Hour),
	}
}

func (p *Proxy) passthrough(ctx context.Context, c *cache.TTL, command string, params url.Values) (*request.Response, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("command", command)

	key := params.Encode()
	if v := c.Get(key); v != nil {
		return v.(*request.Response), nil
	}

	resp, err := p.requester.Get(ctx, p.baseURL, params)
	if err != nil {
		return nil, err
	}
	c.Add(key, resp)
	return resp, nil
}

// ReturnTicker proxies command=returnTicker
func (p *Proxy) ReturnTicker(ctx context.Context) (*request.Response, error) {
	return p.passthrough(ctx, p.tickerCache, "returnTicker", nil)
}

// Return24hVolume proxies command=return24hVolume
func (p *Proxy) Return24hVolume(ctx context.Context) (*request.Response, error) {
	return p.passthrough(ctx, p.volumeCache, "return24hVolume", nil)
}

// ReturnOrderBook proxies command=returnOrderBook
func (p *Proxy) ReturnOrderBook(ctx context.Context, currencyPair, depth string) (*request.Response, error) {
	v := url.Values{}
	setParam(v, "currencyPair", currencyPair)
	setParam(v, "depth", depth)
	return p.passthrough(ctx, p.orderbookCache, "returnOrderBook", v)
}

// ReturnTradeHistory proxies command=returnTradeHistory
func (p *Proxy) ReturnTradeHistory(ctx context.Context, currencyPair, start, end string) (*request.Response, error) {
	v := url.Values{}
	setParam(v, "currencyPair", currencyPair)
	setParam(v, "start", start)
	setParam(v, "end", end)
	return p.passthrough(ctx, p.historyCache, "returnTradeHistory", v)
}

// ReturnChartData proxies command=returnChartData
func (p *Proxy) ReturnChartData(ctx context.Context, currencyPair, start, end, period string) (*request.Response, error) {
	v := url.Values{}
	setParam(v, "currencyPair", currencyPair)
	setParam(v, "start", start)
	setParam(v, "end", end)
	setParam(v, "period", period)
	return p.passthrough(ctx, p.chartCache, "returnChartData", v)
}

// ReturnCurrencies proxies command=returnCurrencies
func (p *Proxy) ReturnCurrencies(ctx context.Context) (*request.Response, error) {
	return p.passthrough(ctx, p.currenciesCache, "returnCurrencies", nil)
}

// ReturnLoanOrders proxies command=returnLoanOrders
func (p *Proxy) ReturnLoanOrders(ctx context.Context, currency string) (*request.Response, error) {
	v := url.Values{}
	setParam(v, "currency", currency)
	return p.passthrough(ctx, p.loanCache, "returnLoanOrders", v)
}

// Tickers returns the upstream ticker table keyed by currency pair,
// decimal-preserving. Used to validate currencyPair parameters and to price
// balances in BTC.
func (p *Proxy) Tickers(ctx context.Context) (map[string]Ticker, error) {
	if v := p.tickersRefCache.Get("tickers"); v != nil {
		return v.(map[string]Ticker), nil
	}

	resp, err := p.ReturnTicker(ctx)
	if err != nil {
		return nil, err
	}
	body, err := checkUpstreamError(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("returnTicker: %w", err)
	}

	tickers := make(map[string]Ticker)
	err = jsonparser.ObjectEach(body, func(key, value []byte, _ jsonparser.ValueType, _ int) error {
		last, err := decimalField(value, "last")
		if err != nil {
			return err
		}
		tickers[string(key)] = Ticker{Last: last}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("returnTicker: %w", err)
	}

	p.tickersRefCache.Add("tickers", tickers)
	return tickers, nil
}

// Currencies returns the upstream currency table keyed by code. Used to
// validate currency parameters.
func (p *Proxy) Currencies(ctx context.Context) (map[string]Currency, error) {
	if v := p.currenciesRefCache.Get("currencies"); v != nil {
		return v.(map[string]Currency), nil
	}

	resp, err := p.ReturnCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	body, err := checkUpstreamError(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("returnCurrencies: %w", err)
	}

	currencies := make(map[string]Currency)
	err = jsonparser.ObjectEach(body, func(key, value []byte, _ jsonparser.ValueType, _ int) error {
		txFee, err := decimalField(value, "txFee")
		if err != nil {
			txFee = decimal.Decimal{}
		}
		currencies[string(key)] = Currency{TxFee: txFee}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("returnCurrencies: %w", err)
	}

	p.currenciesRefCache.Add("currencies", currencies)
	return currencies, nil
}

// checkUpstreamError surfaces the {"error": ...} shape Poloniex uses for
// business failures on an otherwise 200 response
func checkUpstreamError(body []byte) ([]byte, error) {
	if message, err := jsonparser.GetString(body, "error"); err == nil {
		return nil, fmt.Errorf("upstream error: %s", message)
	}
	return body, nil
}

// decimalField reads a field as a decimal with its exact digits; Poloniex
// sends most numbers as strings
func decimalField(item []byte, key string) (decimal.Decimal, error) {
	raw, _, _, err := jsonparser.Get(item, key)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(raw))
}

// setParam sets a query parameter, dropping empty values the way the
// upstream call sites expect
func setParam(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
