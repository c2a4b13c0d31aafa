package bittrex

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

// DefaultUpstreamURL is the live venue's public API root
const DefaultUpstreamURL = "https://bittrex.com/api/v1.1/public"

const cacheCapacity = 128

// Proxy passes public endpoint requests through to the real exchange,
// caching responses per method with TTLs matched to how fast the data goes
// stale. Reference data doubles as keyed maps used for request validation.
type Proxy struct {
	requester *request.Requester
	baseURL   string
	log       *zap.Logger

	marketsCache    *cache.TTL // 1h: reference data
	currenciesCache *cache.TTL
	tickerCache     *cache.TTL // 5s: fast movers
	summariesCache  *cache.TTL // 60s
	summaryCache    *cache.TTL
	orderbookCache  *cache.TTL // 5s
	historyCache    *cache.TTL

	refCache *cache.TTL // parsed markets/currencies maps, 1h
}

// NewProxy returns a proxy over the given upstream base URL
func NewProxy(requester *request.Requester, baseURL string, log *zap.Logger) *Proxy {
	if baseURL == "" {
		baseURL = DefaultUpstreamURL
	}
	return &Proxy{
		requester:       requester,
		baseURL:         baseURL,
		log:             log,
		marketsCache:    cache.NewTTLCache(cacheCapacity, time.Hour),
		currenciesCache: cache.NewTTLCache(cacheCapacity, time.Hour),
		tickerCache:     cache.NewTTLCache(cacheCapacity, 5*time.Second),
		summariesCache:  cache.NewTTLCache(cacheCapacity, time.Minute),
		summaryCache:    cache.NewTTLCache(cacheCapacity, time.Minute),
		orderbookCache:  cache.NewTTLCache(cacheCapacity, 5*time.Second),
		historyCache:    cache.NewTTLCache(cacheCapacity, 5*time.Second),
		refCache:        cache.NewTTLCache(cacheCapacity, time.Hour),
	}
}

func (p *Proxy) passthrough(ctx context.Context, c *cache.TTL, method string, params url.Values) (*request.Response, error) {
	key := params.Encode()
	if v := c.Get(key); v != nil {
		return v.(*request.Response), nil
	}

	resp, err := p.requester.Get(ctx, p.baseURL+"/"+method, params)
	if err != nil {
		return nil, err
	}
	c.Add(key, resp)
	return resp, nil
}

// GetMarkets proxies public/getmarkets
func (p *Proxy) GetMarkets(ctx context.Context) (*request.Response, error) {
	return p.passthrough(ctx, p.marketsCache, "getmarkets", nil)
}

// GetCurrencies proxies public/getcurrencies
func (p *Proxy) GetCurrencies(ctx context.Context) (*request.Response, error) {
	return p.passthrough(ctx, p.currenciesCache, "getcurrencies", nil)
}

// GetTicker proxies public/getticker
func (p *Proxy) GetTicker(ctx context.Context, market string) (*request.Response, error) {
	return p.passthrough(ctx, p.tickerCache, "getticker", params("market", market))
}

// GetMarketSummaries proxies public/getmarketsummaries
func (p *Proxy) GetMarketSummaries(ctx context.Context) (*request.Response, error) {
	return p.passthrough(ctx, p.summariesCache, "getmarketsummaries", nil)
}

// GetMarketSummary proxies public/getmarketsummary
func (p *Proxy) GetMarketSummary(ctx context.Context, market string) (*request.Response, error) {
	return p.passthrough(ctx, p.summaryCache, "getmarketsummary", params("market", market))
}

// GetOrderBook proxies public/getorderbook. Book type defaults to both.
func (p *Proxy) GetOrderBook(ctx context.Context, market, bookType string) (*request.Response, error) {
	if bookType == "" {
		bookType = "both"
	}
	v := params("market", market)
	v.Set("type", bookType)
	return p.passthrough(ctx, p.orderbookCache, "getorderbook", v)
}

// GetMarketHistory proxies public/getmarkethistory
func (p *Proxy) GetMarketHistory(ctx context.Context, market string) (*request.Response, error) {
	return p.passthrough(ctx, p.historyCache, "getmarkethistory", params("market", market))
}

// Markets returns the upstream market table keyed by market name,
// decimal-preserving. Used to validate market parameters and to source
// base/market currencies and minimum trade sizes.
func (p *Proxy) Markets(ctx context.Context) (map[string]Market, error) {
	if v := p.refCache.Get("markets"); v != nil {
		return v.(map[string]Market), nil
	}

	resp, err := p.GetMarkets(ctx)
	if err != nil {
		return nil, err
	}
	result, err := envelopeResult(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("getmarkets: %w", err)
	}

	markets := make(map[string]Market)
	var parseErr error
	_, err = jsonparser.ArrayEach(result, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		var m Market
		if m.MarketName, parseErr = jsonparser.GetString(item, "MarketName"); parseErr != nil {
			return
		}
		if m.BaseCurrency, parseErr = jsonparser.GetString(item, "BaseCurrency"); parseErr != nil {
			return
		}
		if m.MarketCurrency, parseErr = jsonparser.GetString(item, "MarketCurrency"); parseErr != nil {
			return
		}
		if m.MinTradeSize, parseErr = decimalField(item, "MinTradeSize"); parseErr != nil {
			return
		}
		markets[m.MarketName] = m
	})
	if err != nil {
		return nil, fmt.Errorf("getmarkets: %w", err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("getmarkets: %w", parseErr)
	}

	p.refCache.Add("markets", markets)
	return markets, nil
}

// Currencies returns the upstream currency table keyed by code. Used to
// validate currency parameters and to source withdrawal fees.
func (p *Proxy) Currencies(ctx context.Context) (map[string]Currency, error) {
	if v := p.refCache.Get("currencies"); v != nil {
		return v.(map[string]Currency), nil
	}

	resp, err := p.GetCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	result, err := envelopeResult(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("getcurrencies: %w", err)
	}

	currencies := make(map[string]Currency)
	var parseErr error
	_, err = jsonparser.ArrayEach(result, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		var c Currency
		if c.Currency, parseErr = jsonparser.GetString(item, "Currency"); parseErr != nil {
			return
		}
		if c.TxFee, parseErr = decimalField(item, "TxFee"); parseErr != nil {
			return
		}
		currencies[c.Currency] = c
	})
	if err != nil {
		return nil, fmt.Errorf("getcurrencies: %w", err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("getcurrencies: %w", parseErr)
	}

	p.refCache.Add("currencies", currencies)
	return currencies, nil
}

// envelopeResult unwraps {success, message, result} and returns the raw
// result bytes, erroring on an upstream business failure
func envelopeResult(body []byte) ([]byte, error) {
	success, err := jsonparser.GetBoolean(body, "success")
	if err != nil {
		return nil, fmt.Errorf("malformed upstream envelope: %w", err)
	}
	if !success {
		message, _ := jsonparser.GetString(body, "message")
		return nil, fmt.Errorf("upstream error: %s", message)
	}
	result, _, _, err := jsonparser.Get(body, "result")
	if err != nil {
		return nil, fmt.Errorf("malformed upstream envelope: %w", err)
	}
	return result, nil
}

// decimalField reads a numeric field as a decimal with its exact digits
func decimalField(item []byte, key string) (decimal.Decimal, error) {
	raw, _, _, err := jsonparser.Get(item, key)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(raw))
}

// params builds a query, dropping empty values the way the upstream call
// sites expect
func params(key, value string) url.Values {
	v := url.Values{}
	if value != "" {
		v.Set(key, value)
	}
	return v
}
