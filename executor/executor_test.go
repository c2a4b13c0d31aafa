package executor_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/executor"
	"github.com/thrasher-corp/testex/store"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// scriptedRNG replays fixed draw sequences so execution is deterministic
type scriptedRNG struct {
	floats []float64
	exps   []float64
}

func (s *scriptedRNG) Float64() float64 {
	if len(s.floats) == 0 {
		return 1
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptedRNG) ExpFloat64() float64 {
	if len(s.exps) == 0 {
		return 1
	}
	v := s.exps[0]
	s.exps = s.exps[1:]
	return v
}

// urexAdapter mirrors the Bittrex fee model: 0.25% of the trade total,
// reserved in the base currency for buys plus a reserved fee.
type urexAdapter struct{}

func (urexAdapter) ExchangeID() string { return "bittrex" }

func (urexAdapter) ExtendOrder(o exchange.Order) exchange.ExtendedOrder {
	feePct := dec("0.0025")
	ext := exchange.ExtendedOrder{Order: o}
	ext.Total = o.ExecutedAmount.Mul(o.AveragePrice).RoundBank(8)
	ext.Fee = ext.Total.Mul(feePct).RoundBank(8)
	ext.RemainingAmount = o.Amount.Sub(o.ExecutedAmount)
	if o.Direction == exchange.Buy {
		ext.Reserved = o.Amount.Mul(o.Price).RoundBank(8)
		ext.ReservedFee = ext.Reserved.Mul(feePct).RoundBank(8)
	} else {
		ext.Reserved = o.Amount
	}
	return ext
}

// polexAdapter mirrors the Poloniex fee model: 0.2% taker fee charged in
// the fill currency, nothing reserved for fees up front.
type polexAdapter struct{}

func (polexAdapter) ExchangeID() string { return "poloniex" }

func (polexAdapter) ExtendOrder(o exchange.Order) exchange.ExtendedOrder {
	feePct := dec("0.002")
	ext := exchange.ExtendedOrder{Order: o}
	ext.Total = o.ExecutedAmount.Mul(o.AveragePrice).RoundBank(8)
	ext.RemainingAmount = o.Amount.Sub(o.ExecutedAmount)
	if o.Direction == exchange.Buy {
		ext.Reserved = o.Amount.Mul(o.Price).RoundBank(8)
		ext.Fee = o.ExecutedAmount.Mul(feePct).RoundBank(8)
	} else {
		ext.Reserved = o.Amount
		ext.Fee = ext.Total.Mul(feePct).RoundBank(8)
	}
	return ext
}

func newExecutor(t *testing.T, opts ...executor.Option) *executor.Executor {
	t.Helper()
	e := executor.New(store.NewMemory(zap.NewNop()), zap.NewNop(), opts...)
	e.RegisterAdapter(urexAdapter{})
	e.RegisterAdapter(polexAdapter{})
	return e
}

func buyOrder(exchangeID, feeCurrency string) exchange.Order {
	return exchange.Order{
		ID:             "order-1",
		APIKey:         "k",
		ExchangeID:     exchangeID,
		Market:         "BTC-XRP",
		Direction:      exchange.Buy,
		Price:          dec("0.000001"),
		Amount:         dec("500"),
		BaseCurrency:   "BTC",
		MarketCurrency: "XRP",
		FeeCurrency:    feeCurrency,
	}
}

func requireBalance(t *testing.T, e *executor.Executor, currency, available, frozen string) {
	t.Helper()
	b, err := e.GetBalance(context.Background(), "k", currency)
	require.NoError(t, err)
	assert.Truef(t, b.Available.Equal(dec(available)),
		"%s available: want %s got %s", currency, available, b.Available)
	assert.Truef(t, b.Frozen.Equal(dec(frozen)),
		"%s frozen: want %s got %s", currency, frozen, b.Frozen)
}

func TestSendOrderReservesFundsWithFee(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newExecutor(t)

	ext, err := e.SendOrder(ctx, buyOrder("bittrex", "BTC"))
	require.NoError(t, err)
	assert.True(t, ext.Reserved.Equal(dec("0.0005")))
	assert.True(t, ext.ReservedFee.Equal(dec("0.00000125")))
	assert.Equal(t, exchange.Opened, ext.Status)

	// Reserve plus reserved fee moves available -> frozen in BTC.
	requireBalance(t, e, "BTC", "-0.00050125", "0.00050125")

	_, err = e.CancelOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	requireBalance(t, e, "BTC", "0", "0")
}

func TestSendOrderPoloniexReservesWithoutFee(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newExecutor(t)

	_, err := e.SendOrder(ctx, buyOrder("poloniex", "XRP"))
	require.NoError(t, err)
	requireBalance(t, e, "BTC", "-0.0005", "0.0005")

	_, err = e.CancelOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	requireBalance(t, e, "BTC", "0", "0")
}

func TestPartialFillThenCancelKeepsAccruedFee(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newExecutor(t)

	_, err := e.SendOrder(ctx, buyOrder("bittrex", "BTC"))
	require.NoError(t, err)

	o, err := e.GetOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	_, err = e.ExecuteOrder(ctx, o.Order, 0, dec("200"))
	require.NoError(t, err)

	_, err = e.CancelOrder(ctx, "k", "order-1")
	require.NoError(t, err)

	// The 0.25% fee on the filled notional stays charged after cancel.
	requireBalance(t, e, "BTC", "-0.0002005", "0")
	requireBalance(t, e, "XRP", "200", "0")
}

func TestExecuteOrderDeterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newExecutor(t)

	_, err := e.SendOrder(ctx, buyOrder("bittrex", "BTC"))
	require.NoError(t, err)

	o, err := e.GetOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	ext, err := e.ExecuteOrder(ctx, o.Order, 0, dec("100"))
	require.NoError(t, err)
	require.NotNil(t, ext)

	assert.True(t, ext.ExecutedAmount.Equal(dec("100")))
	assert.True(t, ext.AveragePrice.Equal(dec("0.000001")))
	assert.Equal(t, exchange.Opened, ext.Status)

	trades, err := e.GetTrades(ctx, "k", exchange.TradeFilter{OrderNumber: "order-1"})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Amount.Equal(dec("100")))
	assert.True(t, trades[0].Price.Equal(o.Price), "limit orders fill at the posted price")
}

func TestExecuteOrderSkipsWithProbability(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rng := &scriptedRNG{floats: []float64{0.1}}
	e := newExecutor(t, executor.WithRNG(rng))

	_, err := e.SendOrder(ctx, buyOrder("bittrex", "BTC"))
	require.NoError(t, err)

	o, err := e.GetOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	ext, err := e.ExecuteOrder(ctx, o.Order, 0.3, decimal.Decimal{})
	require.NoError(t, err)
	assert.Nil(t, ext, "draw below the skip probability must not mutate anything")

	trades, err := e.GetTrades(ctx, "k", exchange.TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestExecuteOrderClipsDrawAndCloses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Uniform draw passes the gate; the exponential draw of 5x remaining is
	// clipped to the full remaining amount.
	rng := &scriptedRNG{floats: []float64{0.9}, exps: []float64{5}}
	e := newExecutor(t, executor.WithRNG(rng))

	_, err := e.SendOrder(ctx, buyOrder("bittrex", "BTC"))
	require.NoError(t, err)

	o, err := e.GetOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	ext, err := e.ExecuteOrder(ctx, o.Order, 0.3, decimal.Decimal{})
	require.NoError(t, err)
	require.NotNil(t, ext)

	assert.Equal(t, exchange.Closed, ext.Status)
	assert.True(t, ext.ExecutedAmount.Equal(dec("500")))
	assert.True(t, ext.RemainingAmount.IsZero())

	// Full settlement: cost total plus fee in BTC, filled amount in XRP.
	requireBalance(t, e, "BTC", "-0.00050125", "0")
	requireBalance(t, e, "XRP", "500", "0")

	// The closed order cannot be cancelled again.
	_, err = e.CancelOrder(ctx, "k", "order-1")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestDepositCreditsAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newExecutor(t)

	tx, err := e.Deposit(ctx, "k", "BTC", dec("1.5"))
	require.NoError(t, err)
	assert.Equal(t, exchange.Confirmed, tx.Status)
	assert.Equal(t, exchange.Deposit, tx.Type)

	requireBalance(t, e, "BTC", "1.5", "0")
	b, err := e.GetBalance(ctx, "k", "BTC")
	require.NoError(t, err)
	assert.True(t, b.Pending.IsZero(), "pending nets out after the back-to-back hooks")
}

func TestProcessConfirmsWithdrawal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newExecutor(t)

	_, err := e.Deposit(ctx, "k", "BTC", dec("1"))
	require.NoError(t, err)

	_, err = e.SendTransaction(ctx, exchange.Transaction{
		ID:       "w1",
		APIKey:   "k",
		Type:     exchange.Withdrawal,
		Currency: "BTC",
		Amount:   dec("0.4"),
		Address:  "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
	})
	require.NoError(t, err)
	requireBalance(t, e, "BTC", "0.6", "0.4")

	require.NoError(t, e.Process(ctx))
	requireBalance(t, e, "BTC", "0.6", "0")

	txs, err := e.GetTransactions(ctx, "k", exchange.TransactionFilter{Type: exchange.Withdrawal})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, exchange.Confirmed, txs[0].Status)
	assert.False(t, txs[0].UpdatedAt.Before(txs[0].CreatedAt))
}

func TestProcessSweepsOpenOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// One pass, one order: gate passes, draw clips to a full fill.
	rng := &scriptedRNG{floats: []float64{0.9}, exps: []float64{3}}
	e := newExecutor(t, executor.WithRNG(rng))

	_, err := e.SendOrder(ctx, buyOrder("bittrex", "BTC"))
	require.NoError(t, err)

	require.NoError(t, e.Process(ctx))

	o, err := e.GetOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	assert.Equal(t, exchange.Closed, o.Status)

	trades, err := e.GetTrades(ctx, "k", exchange.TradeFilter{OrderNumber: "order-1"})
	require.NoError(t, err)
	require.Len(t, trades, 1)

	// Closed orders: executed equals the sum of their trades.
	sum := decimal.Decimal{}
	for _, tr := range trades {
		sum = sum.Add(tr.Amount)
	}
	assert.True(t, sum.Equal(o.ExecutedAmount))
	assert.True(t, o.ExecutedAmount.LessThanOrEqual(o.Amount))
}

// Double-entry conservation: across a deposit, a partial fill, a cancel and
// a withdrawal, each currency's available+frozen+pending must equal the net
// of confirmed deposits and withdrawals plus realised trade flows minus
// fees.
func TestDoubleEntryConservation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newExecutor(t)

	_, err := e.Deposit(ctx, "k", "BTC", dec("1"))
	require.NoError(t, err)

	_, err = e.SendOrder(ctx, buyOrder("bittrex", "BTC"))
	require.NoError(t, err)

	o, err := e.GetOrder(ctx, "k", "order-1")
	require.NoError(t, err)
	_, err = e.ExecuteOrder(ctx, o.Order, 0, dec("200"))
	require.NoError(t, err)

	_, err = e.CancelOrder(ctx, "k", "order-1")
	require.NoError(t, err)

	_, err = e.SendTransaction(ctx, exchange.Transaction{
		ID:       "w1",
		APIKey:   "k",
		Type:     exchange.Withdrawal,
		Currency: "XRP",
		Amount:   dec("50"),
		Address:  "rwhatever",
	})
	require.NoError(t, err)
	require.NoError(t, e.Process(ctx))

	// BTC: 1 deposited, 0.0002 spent on the fill, 0.0000005 fee paid.
	requireBalance(t, e, "BTC", "0.9997995", "0")
	// XRP: 200 bought, 50 withdrawn (confirmed, so frozen released).
	requireBalance(t, e, "XRP", "150", "0")

	btc, err := e.GetBalance(ctx, "k", "BTC")
	require.NoError(t, err)
	assert.True(t, btc.Total().Equal(dec("0.9997995")))
}
