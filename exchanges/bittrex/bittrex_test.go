package bittrex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thrasher-corp/testex/common/crypto"
	"github.com/thrasher-corp/testex/executor"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/exchanges/request"
	"github.com/thrasher-corp/testex/store"
	"go.uber.org/zap"
)

const (
	testKey = "qwerty"
	// A well-known valid base58check BTC address
	testAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

type staticRef struct {
	markets    map[string]Market
	currencies map[string]Currency
}

func (r staticRef) Markets(context.Context) (map[string]Market, error) {
	return r.markets, nil
}

func (r staticRef) Currencies(context.Context) (map[string]Currency, error) {
	return r.currencies, nil
}

func newTestRef() staticRef {
	return staticRef{
		markets: map[string]Market{
			"BTC-XRP": {
				MarketName:     "BTC-XRP",
				BaseCurrency:   "BTC",
				MarketCurrency: "XRP",
				MinTradeSize:   decimal.RequireFromString("10"),
			},
		},
		currencies: map[string]Currency{
			"BTC": {Currency: "BTC", TxFee: decimal.RequireFromString("0.0005")},
			"XRP": {Currency: "XRP", TxFee: decimal.RequireFromString("0.15")},
		},
	}
}

func newTestStub(t *testing.T) (*Stub, *executor.Executor) {
	t.Helper()
	log := zap.NewNop()
	exec := executor.New(store.NewMemory(log), log, executor.WithNonExecuteProb(1))
	return NewStub(exec, newTestRef(), log), exec
}

func deposit(t *testing.T, exec *executor.Executor, currency, quantity string) {
	t.Helper()
	_, err := exec.Deposit(context.Background(), testKey, currency,
		decimal.RequireFromString(quantity))
	require.NoError(t, err)
}

func assertAPIError(t *testing.T, err error, message string) {
	t.Helper()
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, message, apiErr.Message)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	s, _ := newTestStub(t)

	fullURL := "https://bittrex.com/api/v1.1/market/getopenorders?apikey=qwerty&nonce=1"
	sign := crypto.SignMessage(fullURL, testKey)

	_, err := s.Authenticate(fullURL, "", testKey, sign)
	assertAPIError(t, err, "NONCE_NOT_PROVIDED")

	_, err = s.Authenticate(fullURL, "1", "", sign)
	assertAPIError(t, err, "APIKEY_NOT_PROVIDED")

	_, err = s.Authenticate(fullURL, "1", testKey, "")
	assertAPIError(t, err, "APISIGN_NOT_PROVIDED")

	_, err = s.Authenticate(fullURL, "1", testKey, "deadbeef")
	assertAPIError(t, err, "INVALID_SIGNATURE")

	key, err := s.Authenticate(fullURL, "1", testKey, sign)
	require.NoError(t, err)
	assert.Equal(t, testKey, key)
}

func TestSendOrderValidation(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()
	// The balance check compares the order quantity against the funding
	// currency, so buys need BTC covering the quantity itself
	deposit(t, exec, "BTC", "1000")

	for _, tt := range []struct {
		name     string
		market   string
		quantity string
		rate     string
		want     string
	}{
		{"missing market", "", "100", "0.00001", "MARKET_NOT_PROVIDED"},
		{"unknown market", "BTC-DOGE", "100", "0.00001", "INVALID_MARKET"},
		{"missing quantity", "BTC-XRP", "", "0.00001", "QUANTITY_NOT_PROVIDED"},
		{"bad quantity", "BTC-XRP", "lots", "0.00001", "QUANTITY_INVALID"},
		{"missing rate", "BTC-XRP", "100", "", "RATE_NOT_PROVIDED"},
		{"bad rate", "BTC-XRP", "100", "cheap", "RATE_INVALID"},
		{"insufficient funds", "BTC-XRP", "100000000", "0.00001", "INSUFFICIENT_FUNDS"},
		{"below min trade size", "BTC-XRP", "5", "0.001", "MIN_TRADE_REQUIREMENT_NOT_MET"},
		{"dust total", "BTC-XRP", "100", "0.000001", "DUST_TRADE_DISALLOWED_MIN_VALUE_50K_SAT"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SendOrder(ctx, testKey, exchange.Buy, tt.market, tt.quantity, tt.rate)
			assertAPIError(t, err, tt.want)
		})
	}
}

func TestSendOrderChecksFundingCurrency(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()

	// A sell is funded by the market currency, so BTC alone is not enough
	deposit(t, exec, "BTC", "1")
	_, err := s.SendOrder(ctx, testKey, exchange.Sell, "BTC-XRP", "100", "0.0001")
	assertAPIError(t, err, "INSUFFICIENT_FUNDS")

	deposit(t, exec, "XRP", "100")
	res, err := s.SendOrder(ctx, testKey, exchange.Sell, "BTC-XRP", "100", "0.0001")
	require.NoError(t, err)
	assert.NotEmpty(t, res.UUID)

	// A buy compares the order quantity itself against the base balance,
	// not the quantity x rate cost: 1 BTC covers the 0.01 cost but not the
	// quantity of 100
	_, err = s.SendOrder(ctx, testKey, exchange.Buy, "BTC-XRP", "100", "0.0001")
	assertAPIError(t, err, "INSUFFICIENT_FUNDS")

	deposit(t, exec, "BTC", "99")
	res, err = s.SendOrder(ctx, testKey, exchange.Buy, "BTC-XRP", "100", "0.0001")
	require.NoError(t, err)
	assert.NotEmpty(t, res.UUID)
}

func TestSendOrderAndOpenOrders(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()
	deposit(t, exec, "BTC", "1000")

	res, err := s.SendOrder(ctx, testKey, exchange.Buy, "BTC-XRP", "100", "0.00002")
	require.NoError(t, err)

	orders, err := s.GetOpenOrders(ctx, testKey, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, res.UUID, o.OrderUUID)
	assert.Equal(t, "BTC-XRP", o.Exchange)
	assert.Equal(t, "BUY_LIMIT", o.OrderType)
	assert.True(t, o.Quantity.Equal(decimal.RequireFromString("100")))
	assert.True(t, o.QuantityRemaining.Equal(decimal.RequireFromString("100")))
	assert.True(t, o.Limit.Equal(decimal.RequireFromString("0.00002")))
	assert.Nil(t, o.Closed)
	assert.Nil(t, o.PricePerUnit)

	// Filtering on an unknown market is refused before the store is hit
	_, err = s.GetOpenOrders(ctx, testKey, "BTC-DOGE")
	assertAPIError(t, err, "INVALID_MARKET")

	filtered, err := s.GetOpenOrders(ctx, testKey, "BTC-XRP")
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestExtendOrder(t *testing.T) {
	t.Parallel()
	s, _ := newTestStub(t)

	o := exchange.Order{
		Direction:      exchange.Buy,
		Price:          decimal.RequireFromString("0.00002"),
		Amount:         decimal.RequireFromString("100"),
		ExecutedAmount: decimal.RequireFromString("40"),
		AveragePrice:   decimal.RequireFromString("0.00002"),
	}
	ext := s.ExtendOrder(o)
	assert.True(t, ext.Total.Equal(decimal.RequireFromString("0.0008")), ext.Total.String())
	assert.True(t, ext.Fee.Equal(decimal.RequireFromString("0.000002")), ext.Fee.String())
	assert.True(t, ext.RemainingAmount.Equal(decimal.RequireFromString("60")))
	assert.True(t, ext.Reserved.Equal(decimal.RequireFromString("0.002")), ext.Reserved.String())
	assert.True(t, ext.ReservedFee.Equal(decimal.RequireFromString("0.000005")), ext.ReservedFee.String())

	o.Direction = exchange.Sell
	ext = s.ExtendOrder(o)
	assert.True(t, ext.Reserved.Equal(decimal.RequireFromString("100")))
	assert.True(t, ext.ReservedFee.IsZero())
}

func TestCancel(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()
	deposit(t, exec, "BTC", "1000")

	err := s.Cancel(ctx, testKey, "")
	assertAPIError(t, err, "UUID_NOT_PROVIDED")

	err = s.Cancel(ctx, testKey, "not-a-uuid")
	assertAPIError(t, err, "UUID_INVALID")

	err = s.Cancel(ctx, testKey, "ecb6be54-cd5e-47d5-93b4-c2a4d0b8b273")
	assertAPIError(t, err, "INVALID_ORDER")

	res, err := s.SendOrder(ctx, testKey, exchange.Buy, "BTC-XRP", "100", "0.00002")
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, testKey, res.UUID))

	err = s.Cancel(ctx, testKey, res.UUID)
	assertAPIError(t, err, "ORDER_NOT_OPEN")

	history, err := s.GetOrderHistory(ctx, testKey, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotNil(t, history[0].Closed)
}

func TestGetOrder(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()
	deposit(t, exec, "BTC", "1000")

	res, err := s.SendOrder(ctx, testKey, exchange.Buy, "BTC-XRP", "100", "0.00002")
	require.NoError(t, err)

	o, err := s.GetOrder(ctx, testKey, res.UUID)
	require.NoError(t, err)
	assert.Equal(t, res.UUID, o.OrderUUID)
	assert.True(t, o.IsOpen)
	assert.True(t, o.Reserved.Equal(decimal.RequireFromString("0.002")))
	assert.True(t, o.CommissionReserved.Equal(decimal.RequireFromString("0.000005")))
	assert.True(t, o.CommissionReserveRemaining.Equal(decimal.RequireFromString("0.000005")))
	assert.True(t, o.ReserveRemaining.Equal(decimal.RequireFromString("0.002")))

	// Another key cannot see the order
	_, err = s.GetOrder(ctx, "other", res.UUID)
	assertAPIError(t, err, "INVALID_ORDER")
}

func TestGetBalance(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()

	_, err := s.GetBalance(ctx, testKey, "")
	assertAPIError(t, err, "CURRENCY_NOT_PROVIDED")

	_, err = s.GetBalance(ctx, testKey, "DOGE")
	assertAPIError(t, err, "INVALID_CURRENCY")

	// Untouched currencies read as zeroed cells
	b, err := s.GetBalance(ctx, testKey, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", b.Currency)
	assert.True(t, b.Balance.IsZero())

	deposit(t, exec, "BTC", "1.5")
	b, err = s.GetBalance(ctx, testKey, "BTC")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, b.Balance.Equal(decimal.RequireFromString("1.5")))

	all, err := s.GetBalances(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].CryptoAddress)
}

func TestGetDepositAddress(t *testing.T) {
	t.Parallel()
	s, _ := newTestStub(t)

	err := s.GetDepositAddress(context.Background(), "DOGE")
	assertAPIError(t, err, "INVALID_CURRENCY")

	err = s.GetDepositAddress(context.Background(), "BTC")
	assertAPIError(t, err, "ADDRESS_GENERATING")
}

func TestWithdraw(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()
	deposit(t, exec, "BTC", "1")

	_, err := s.Withdraw(ctx, testKey, "BTC", "0.5", "", "")
	assertAPIError(t, err, "ADDRESS_NOT_PROVIDED")

	_, err = s.Withdraw(ctx, testKey, "BTC", "0.5", "notanaddress", "")
	assertAPIError(t, err, "ADDRESS_INVALID")

	_, err = s.Withdraw(ctx, testKey, "BTC", "2", testAddress, "")
	assertAPIError(t, err, "INSUFFICIENT_FUNDS")

	res, err := s.Withdraw(ctx, testKey, "BTC", "0.5", testAddress, "")
	require.NoError(t, err)

	history, err := s.GetWithdrawalHistory(ctx, testKey, "BTC")
	require.NoError(t, err)
	require.Len(t, history, 1)

	w := history[0]
	assert.Equal(t, res.UUID, w.PaymentUUID)
	assert.Equal(t, testAddress, w.Address)
	assert.True(t, w.Amount.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, w.TxCost.Equal(decimal.RequireFromString("0.0005")))
	assert.False(t, w.Authorized)
	assert.False(t, w.Canceled)
}

func TestDepositHistory(t *testing.T) {
	t.Parallel()
	s, exec := newTestStub(t)
	ctx := context.Background()
	deposit(t, exec, "BTC", "1")
	deposit(t, exec, "XRP", "100")

	all, err := s.GetDepositHistory(ctx, testKey, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	btc, err := s.GetDepositHistory(ctx, testKey, "BTC")
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, "BTC", btc[0].Currency)
	assert.True(t, btc[0].Amount.Equal(decimal.RequireFromString("1")))
}

func TestProxyCaching(t *testing.T) {
	t.Parallel()

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/getmarkets":
			_, _ = w.Write([]byte(`{"success":true,"message":"","result":[
				{"MarketName":"BTC-XRP","BaseCurrency":"BTC","MarketCurrency":"XRP","MinTradeSize":28.61230482}
			]}`))
		case "/getticker":
			_, _ = w.Write([]byte(`{"success":true,"message":"","result":{"Bid":0.00002,"Ask":0.000021,"Last":0.0000205}}`))
		default:
			_, _ = w.Write([]byte(`{"success":true,"message":"","result":[]}`))
		}
	}))
	defer srv.Close()

	log := zap.NewNop()
	requester, err := request.New("bittrex", log)
	require.NoError(t, err)
	p := NewProxy(requester, srv.URL, log)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := p.GetTicker(ctx, "BTC-XRP")
		require.NoError(t, err)
		assert.Contains(t, string(resp.Body), "0.0000205")
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))

	markets, err := p.Markets(ctx)
	require.NoError(t, err)
	require.Contains(t, markets, "BTC-XRP")
	m := markets["BTC-XRP"]
	assert.Equal(t, "BTC", m.BaseCurrency)
	assert.Equal(t, "XRP", m.MarketCurrency)
	// Exact upstream digits survive the round trip
	assert.Equal(t, "28.61230482", m.MinTradeSize.String())

	_, err = p.Markets(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&hits))
}
