package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/store"
	"go.uber.org/zap"
)

// DefaultNonExecuteProb is the chance an execution pass skips an order
const DefaultNonExecuteProb = 0.3

// Executor is the trading engine. It owns every mutation of orders, trades,
// transactions and balances, and is the only component that moves balances.
// Exchange dialects register as adapters so their fee models extend orders
// with derived fields on every read.
type Executor struct {
	store          store.Store
	log            *zap.Logger
	rng            RNG
	nonExecuteProb float64

	mu       sync.RWMutex
	adapters map[string]exchange.Adapter
}

// Option configures an Executor
type Option func(*Executor)

// WithRNG injects the randomness source, deterministic in tests
func WithRNG(r RNG) Option {
	return func(e *Executor) { e.rng = r }
}

// WithNonExecuteProb overrides the default skip probability
func WithNonExecuteProb(p float64) Option {
	return func(e *Executor) { e.nonExecuteProb = p }
}

// New returns an Executor over the given store
func New(s store.Store, log *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:          s,
		log:            log,
		rng:            NewRNG(),
		nonExecuteProb: DefaultNonExecuteProb,
		adapters:       make(map[string]exchange.Adapter),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RegisterAdapter wires a dialect's fee model into order extension
func (e *Executor) RegisterAdapter(a exchange.Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adapters[a.ExchangeID()] = a
}

// extendOrder dispatches to the adapter that owns the order's exchange.
// Orders without a registered adapter only get the remaining amount
// computed.
func (e *Executor) extendOrder(o exchange.Order) exchange.ExtendedOrder {
	e.mu.RLock()
	a, ok := e.adapters[o.ExchangeID]
	e.mu.RUnlock()
	if ok {
		return a.ExtendOrder(o)
	}
	return exchange.ExtendedOrder{
		Order:           o,
		RemainingAmount: o.Amount.Sub(o.ExecutedAmount),
	}
}

// SendOrder inserts a new opened order and reserves funds against it. The
// order row is persisted before any balance movement, and funds are not
// pre-checked here; the adapter validates them beforehand.
func (e *Executor) SendOrder(ctx context.Context, o exchange.Order) (*exchange.ExtendedOrder, error) {
	o.Status = exchange.Opened
	o.CreatedAt = time.Now().UTC()

	if err := e.store.InsertOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("send order: %w", err)
	}

	ext := e.extendOrder(o)
	if err := e.onOrderOpened(ctx, ext); err != nil {
		return nil, err
	}

	e.log.Info("send_order",
		zap.String("direction", string(o.Direction)),
		zap.String("amount", o.Amount.String()),
		zap.String("market_currency", o.MarketCurrency),
		zap.String("price", o.Price.String()),
		zap.String("base_currency", o.BaseCurrency))
	return &ext, nil
}

// GetOrder fetches one extended order scoped to an api key
func (e *Executor) GetOrder(ctx context.Context, apiKey, number string) (*exchange.ExtendedOrder, error) {
	o, err := e.store.FindOrder(ctx, apiKey, number)
	if errors.Is(err, store.ErrNotFound) {
		return nil, exchange.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	ext := e.extendOrder(*o)
	return &ext, nil
}

// CancelOrder closes an order and releases its remaining reserves. The
// closed transition is a single find-and-modify, so a cancel racing a
// closing fill settles at most once.
func (e *Executor) CancelOrder(ctx context.Context, apiKey, number string) (*exchange.ExtendedOrder, error) {
	o, err := e.store.CloseOrder(ctx, apiKey, number, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, exchange.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	ext := e.extendOrder(*o)
	if err := e.onOrderClosed(ctx, ext); err != nil {
		return nil, err
	}

	e.log.Info("cancel_order",
		zap.String("direction", string(ext.Direction)),
		zap.String("executed_amount", ext.ExecutedAmount.String()),
		zap.String("amount", ext.Amount.String()),
		zap.String("market_currency", ext.MarketCurrency))
	return &ext, nil
}

// GetOrders lists extended orders in the given status, optionally filtered
// by market
func (e *Executor) GetOrders(ctx context.Context, apiKey string, status exchange.OrderStatus, market string) ([]exchange.ExtendedOrder, error) {
	orders, err := e.store.FindOrders(ctx, apiKey, status, market)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	out := make([]exchange.ExtendedOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, e.extendOrder(o))
	}
	return out, nil
}

// ExecuteOrder runs one probabilistic fill step against an order. With
// probability nonExecuteProb nothing happens. Otherwise a trade amount is
// drawn (exponential with mean equal to the remaining amount, clipped to
// it) unless one is given, a trade is recorded at the posted price, and the
// order's execution state advances atomically. A draw equal to the
// remaining amount closes the order and settles its balances.
//
// The trade row is inserted before the order find-and-modify; the
// find-and-modify gates on status=opened, so a fill racing a cancel returns
// nil without settling twice.
func (e *Executor) ExecuteOrder(ctx context.Context, o exchange.Order, nonExecuteProb float64, tradeAmount decimal.Decimal) (*exchange.ExtendedOrder, error) {
	if e.rng.Float64() < nonExecuteProb {
		e.log.Debug("execute_order: skip execution")
		return nil, nil
	}

	ext := e.extendOrder(o)
	if tradeAmount.IsZero() {
		draw := decimal.NewFromFloat(e.rng.ExpFloat64()).Mul(ext.RemainingAmount)
		tradeAmount = decimal.Min(ext.RemainingAmount, draw)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("execute order: %w", err)
	}
	trade := exchange.Trade{
		ID:          id.String(),
		APIKey:      o.APIKey,
		OrderNumber: o.ID,
		Direction:   o.Direction,
		Price:       o.Price,
		Amount:      tradeAmount,
		Market:      o.Market,
		CreatedAt:   time.Now().UTC(),
	}

	// The volume-weighted average comes from the pre-update state: the old
	// total is old executed x old average.
	averagePrice := trade.Amount.Mul(trade.Price).Add(ext.Total).
		Div(trade.Amount.Add(ext.ExecutedAmount))

	status := exchange.Opened
	if trade.Amount.Equal(ext.RemainingAmount) {
		status = exchange.Closed
	}

	if err := e.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("execute order: %w", err)
	}

	updated, err := e.store.ApplyOrderFill(ctx, o.ID, trade.Amount, averagePrice, status, trade.CreatedAt)
	if errors.Is(err, store.ErrNotFound) {
		// Lost the race against a cancel; the order is already closed and
		// settled.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("execute order: %w", err)
	}

	extUpdated := e.extendOrder(*updated)
	if status == exchange.Closed {
		if err := e.onOrderClosed(ctx, extUpdated); err != nil {
			return nil, err
		}
	}

	e.log.Info("execute_order",
		zap.String("direction", string(trade.Direction)),
		zap.String("amount", trade.Amount.String()),
		zap.String("of", extUpdated.Amount.String()),
		zap.String("market_currency", extUpdated.MarketCurrency),
		zap.String("price", trade.Price.String()),
		zap.String("base_currency", extUpdated.BaseCurrency))
	return &extUpdated, nil
}

// SendTransaction inserts a transaction in its initial state and runs the
// submitted bookkeeping hook. Withdrawals default to non_authorized.
func (e *Executor) SendTransaction(ctx context.Context, tx exchange.Transaction) (*exchange.Transaction, error) {
	if tx.Status == "" {
		tx.Status = exchange.NonAuthorized
	}
	tx.CreatedAt = time.Now().UTC()

	if err := e.store.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	if err := e.onTransactionSubmitted(ctx, tx); err != nil {
		return nil, err
	}

	e.log.Info("send_transaction",
		zap.String("type", string(tx.Type)),
		zap.String("amount", tx.Amount.String()),
		zap.String("currency", tx.Currency),
		zap.String("address", tx.Address))
	return &tx, nil
}

// GetTransactions lists transactions matching the filter
func (e *Executor) GetTransactions(ctx context.Context, apiKey string, filter exchange.TransactionFilter) ([]exchange.Transaction, error) {
	txs, err := e.store.FindTransactions(ctx, apiKey, filter)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	return txs, nil
}

// GetTrades lists trades matching the filter
func (e *Executor) GetTrades(ctx context.Context, apiKey string, filter exchange.TradeFilter) ([]exchange.Trade, error) {
	trades, err := e.store.FindTrades(ctx, apiKey, filter)
	if err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	return trades, nil
}

// GetBalances lists every balance row for an api key
func (e *Executor) GetBalances(ctx context.Context, apiKey string) ([]exchange.Balance, error) {
	balances, err := e.store.FindBalances(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	return balances, nil
}

// GetBalance fetches one balance cell, zeroed when no row exists yet
func (e *Executor) GetBalance(ctx context.Context, apiKey, currency string) (exchange.Balance, error) {
	b, err := e.store.FindBalance(ctx, apiKey, currency)
	if errors.Is(err, store.ErrNotFound) {
		return exchange.Balance{APIKey: apiKey, Currency: currency}, nil
	}
	if err != nil {
		return exchange.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return *b, nil
}

// Process sweeps the book: one execution attempt per opened order, then
// confirmation of every unconfirmed transaction. It runs before and after
// every authenticated adapter call.
func (e *Executor) Process(ctx context.Context) error {
	orders, err := e.store.FindOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}
	for _, o := range orders {
		if _, err := e.ExecuteOrder(ctx, o, e.nonExecuteProb, decimal.Decimal{}); err != nil {
			return fmt.Errorf("process: %w", err)
		}
	}

	txs, err := e.store.FindUnconfirmedTransactions(ctx)
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}
	for _, tx := range txs {
		confirmed, err := e.store.ConfirmTransaction(ctx, tx.APIKey, tx.ID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("process: %w", err)
		}
		if err := e.onTransactionConfirmed(ctx, *confirmed); err != nil {
			return err
		}
	}
	return nil
}

// Deposit credits funds directly: the transaction is inserted pre-marked
// confirmed (so the sweep never touches it) and both bookkeeping hooks fire
// back to back. Used by the faucet page.
func (e *Executor) Deposit(ctx context.Context, apiKey, currency string, quantity decimal.Decimal) (*exchange.Transaction, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}

	tx, err := e.SendTransaction(ctx, exchange.Transaction{
		ID:        id.String(),
		APIKey:    apiKey,
		Type:      exchange.Deposit,
		Currency:  currency,
		Amount:    quantity,
		Status:    exchange.Confirmed,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := e.onTransactionConfirmed(ctx, *tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Balance hooks. These are the only mutators of the balances collection;
// each event's deltas are batched into one incrementBalances call.

func (e *Executor) onOrderOpened(ctx context.Context, o exchange.ExtendedOrder) error {
	inc := exchange.BalanceIncrements{}

	if o.Direction == exchange.Buy {
		inc.Add(o.BaseCurrency, exchange.BalanceDelta{
			Frozen:    o.Reserved,
			Available: o.Reserved.Neg(),
		})
	} else {
		inc.Add(o.MarketCurrency, exchange.BalanceDelta{
			Frozen:    o.Reserved,
			Available: o.Reserved.Neg(),
		})
	}
	inc.Add(o.FeeCurrency, exchange.BalanceDelta{
		Frozen:    o.ReservedFee,
		Available: o.ReservedFee.Neg(),
	})

	return e.incrementBalances(ctx, o.APIKey, inc)
}

func (e *Executor) onOrderClosed(ctx context.Context, o exchange.ExtendedOrder) error {
	inc := exchange.BalanceIncrements{}

	if o.Direction == exchange.Buy {
		inc.Add(o.BaseCurrency, exchange.BalanceDelta{
			Frozen:    o.Reserved.Neg(),
			Available: o.Reserved.Sub(o.Total),
		})
		inc.Add(o.MarketCurrency, exchange.BalanceDelta{
			Available: o.ExecutedAmount,
		})
	} else {
		inc.Add(o.MarketCurrency, exchange.BalanceDelta{
			Frozen:    o.Reserved.Neg(),
			Available: o.Reserved.Sub(o.ExecutedAmount),
		})
		inc.Add(o.BaseCurrency, exchange.BalanceDelta{
			Available: o.Total,
		})
	}
	inc.Add(o.FeeCurrency, exchange.BalanceDelta{
		Frozen:    o.ReservedFee.Neg(),
		Available: o.ReservedFee.Sub(o.Fee),
	})

	return e.incrementBalances(ctx, o.APIKey, inc)
}

func (e *Executor) onTransactionSubmitted(ctx context.Context, tx exchange.Transaction) error {
	inc := exchange.BalanceIncrements{}

	if tx.Type == exchange.Withdrawal {
		inc.Add(tx.Currency, exchange.BalanceDelta{
			Available: tx.Amount.Neg(),
			Frozen:    tx.Amount,
		})
	} else {
		inc.Add(tx.Currency, exchange.BalanceDelta{
			Pending: tx.Amount,
		})
	}

	return e.incrementBalances(ctx, tx.APIKey, inc)
}

func (e *Executor) onTransactionConfirmed(ctx context.Context, tx exchange.Transaction) error {
	inc := exchange.BalanceIncrements{}

	if tx.Type == exchange.Withdrawal {
		inc.Add(tx.Currency, exchange.BalanceDelta{
			Frozen: tx.Amount.Neg(),
		})
	} else {
		inc.Add(tx.Currency, exchange.BalanceDelta{
			Pending:   tx.Amount.Neg(),
			Available: tx.Amount,
		})
	}

	return e.incrementBalances(ctx, tx.APIKey, inc)
}

// incrementBalances applies one event's batched deltas, one atomic
// increment per currency in sorted order for deterministic logs
func (e *Executor) incrementBalances(ctx context.Context, apiKey string, inc exchange.BalanceIncrements) error {
	currencies := make([]string, 0, len(inc))
	for c := range inc {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	for _, c := range currencies {
		d := inc[c]
		if err := e.store.IncrementBalance(ctx, apiKey, c, d); err != nil {
			return fmt.Errorf("increment balances: %w", err)
		}
		e.log.Debug("increment_balances",
			zap.String("currency", c),
			zap.String("available", d.Available.String()),
			zap.String("frozen", d.Frozen.String()),
			zap.String("pending", d.Pending.String()))
	}
	return nil
}
