package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/store"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrder(id string) exchange.Order {
	return exchange.Order{
		ID:             id,
		APIKey:         "k",
		ExchangeID:     "bittrex",
		Market:         "BTC-XRP",
		Direction:      exchange.Buy,
		Price:          dec("0.000001"),
		Amount:         dec("500"),
		BaseCurrency:   "BTC",
		MarketCurrency: "XRP",
		FeeCurrency:    "BTC",
		Status:         exchange.Opened,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestOrderInsertAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemory(zap.NewNop())

	require.NoError(t, s.InsertOrder(ctx, newOrder("a")))
	assert.ErrorIs(t, s.InsertOrder(ctx, newOrder("a")), store.ErrDuplicateID)

	o, err := s.FindOrder(ctx, "k", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", o.ID)

	// Scoped to the owning api key.
	_, err = s.FindOrder(ctx, "other", "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindOrdersFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemory(zap.NewNop())

	a := newOrder("a")
	b := newOrder("b")
	b.Market = "BTC-LTC"
	c := newOrder("c")
	c.Status = exchange.Closed
	for _, o := range []exchange.Order{a, b, c} {
		require.NoError(t, s.InsertOrder(ctx, o))
	}

	open, err := s.FindOrders(ctx, "k", exchange.Opened, "")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	xrp, err := s.FindOrders(ctx, "k", exchange.Opened, "BTC-XRP")
	require.NoError(t, err)
	require.Len(t, xrp, 1)
	assert.Equal(t, "a", xrp[0].ID)

	closed, err := s.FindOrders(ctx, "k", exchange.Closed, "")
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "c", closed[0].ID)
}

func TestApplyOrderFillGatesOnOpened(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemory(zap.NewNop())
	require.NoError(t, s.InsertOrder(ctx, newOrder("a")))

	at := time.Now().UTC()
	o, err := s.ApplyOrderFill(ctx, "a", dec("100"), dec("0.000001"), exchange.Opened, at)
	require.NoError(t, err)
	assert.True(t, o.ExecutedAmount.Equal(dec("100")))
	assert.True(t, o.AveragePrice.Equal(dec("0.000001")))
	assert.Equal(t, exchange.Opened, o.Status)

	// Closing fill flips the status; the next fill must miss the gate.
	o, err = s.ApplyOrderFill(ctx, "a", dec("400"), dec("0.000001"), exchange.Closed, at)
	require.NoError(t, err)
	assert.True(t, o.ExecutedAmount.Equal(dec("500")))
	assert.Equal(t, exchange.Closed, o.Status)

	_, err = s.ApplyOrderFill(ctx, "a", dec("1"), dec("0.000001"), exchange.Opened, at)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCloseOrderIsSingleShot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemory(zap.NewNop())
	require.NoError(t, s.InsertOrder(ctx, newOrder("a")))

	at := time.Now().UTC()
	o, err := s.CloseOrder(ctx, "k", "a", at)
	require.NoError(t, err)
	assert.Equal(t, exchange.Closed, o.Status)
	assert.Equal(t, at, o.UpdatedAt)

	// A second close, or a close racing a fill, must report not found so
	// the caller settles balances at most once.
	_, err = s.CloseOrder(ctx, "k", "a", at)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindTradesFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemory(zap.NewNop())

	base := time.Date(2018, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.InsertTrade(ctx, exchange.Trade{
			ID:          id,
			APIKey:      "k",
			OrderNumber: "a",
			Direction:   exchange.Buy,
			Price:       dec("0.000001"),
			Amount:      dec("10"),
			Market:      "BTC-XRP",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := s.FindTrades(ctx, "k", exchange.TradeFilter{OrderNumber: "a"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.FindTrades(ctx, "k", exchange.TradeFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Interval bounds are exclusive, matching the $gt/$lt store queries.
	window, err := s.FindTrades(ctx, "k", exchange.TradeFilter{
		StartAt: base,
		EndAt:   base.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "t2", window[0].ID)
}

func TestConfirmTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemory(zap.NewNop())

	require.NoError(t, s.InsertTransaction(ctx, exchange.Transaction{
		ID:        "w1",
		APIKey:    "k",
		Type:      exchange.Withdrawal,
		Currency:  "BTC",
		Amount:    dec("1"),
		Status:    exchange.NonAuthorized,
		CreatedAt: time.Now().UTC(),
	}))

	pending, err := s.FindUnconfirmedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	at := time.Now().UTC()
	tx, err := s.ConfirmTransaction(ctx, "k", "w1", at)
	require.NoError(t, err)
	assert.Equal(t, exchange.Confirmed, tx.Status)
	assert.Equal(t, at, tx.UpdatedAt)

	pending, err = s.FindUnconfirmedTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.ConfirmTransaction(ctx, "k", "missing", at)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIncrementBalanceUpserts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemory(zap.NewNop())

	_, err := s.FindBalance(ctx, "k", "BTC")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.IncrementBalance(ctx, "k", "BTC", exchange.BalanceDelta{
		Available: dec("-0.0005"),
		Frozen:    dec("0.0005"),
	}))
	require.NoError(t, s.IncrementBalance(ctx, "k", "BTC", exchange.BalanceDelta{
		Pending: dec("1"),
	}))

	b, err := s.FindBalance(ctx, "k", "BTC")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.True(t, b.Available.Equal(dec("-0.0005")))
	assert.True(t, b.Frozen.Equal(dec("0.0005")))
	assert.True(t, b.Pending.Equal(dec("1")))

	balances, err := s.FindBalances(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, balances, 1)
}
