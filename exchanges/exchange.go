package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

func init() {
	// Both venues' wire formats carry monetary values as bare JSON numbers
	// with exact decimal digits.
	decimal.MarshalJSONWithoutQuotes = true
	decimal.DivisionPrecision = 28
}

// ErrOrderNotFound is returned when no order matches the (api_key, number)
// pair, or when a cancel races an already-closed order.
var ErrOrderNotFound = errors.New("order not found")

// Adapter lets an exchange dialect hook its fee model into the executor.
// ExtendOrder must be pure: it populates the derived fields from the stored
// ones and never touches the store.
type Adapter interface {
	ExchangeID() string
	ExtendOrder(o Order) ExtendedOrder
}

// Executor owns all mutation of orders, trades, transactions and balances.
// It is the only component allowed to move balances.
type Executor interface {
	// RegisterAdapter wires a dialect's fee model into order extension.
	RegisterAdapter(a Adapter)

	// SendOrder inserts a new opened order and reserves funds against it.
	// Funds are not pre-checked here; the adapter validates them first.
	SendOrder(ctx context.Context, o Order) (*ExtendedOrder, error)

	// GetOrder fetches one order scoped to an api key. Returns
	// ErrOrderNotFound when absent.
	GetOrder(ctx context.Context, apiKey, number string) (*ExtendedOrder, error)

	// CancelOrder closes an order and releases its remaining reserves.
	// Returns ErrOrderNotFound when absent or already closed.
	CancelOrder(ctx context.Context, apiKey, number string) (*ExtendedOrder, error)

	// GetOrders lists orders in the given status, optionally filtered by
	// market.
	GetOrders(ctx context.Context, apiKey string, status OrderStatus, market string) ([]ExtendedOrder, error)

	// SendTransaction inserts a transaction in its initial state and runs
	// the submitted bookkeeping hook.
	SendTransaction(ctx context.Context, tx Transaction) (*Transaction, error)

	// GetTransactions lists transactions matching the filter.
	GetTransactions(ctx context.Context, apiKey string, filter TransactionFilter) ([]Transaction, error)

	// GetTrades lists trades matching the filter.
	GetTrades(ctx context.Context, apiKey string, filter TradeFilter) ([]Trade, error)

	// GetBalances lists every balance row for an api key.
	GetBalances(ctx context.Context, apiKey string) ([]Balance, error)

	// GetBalance fetches one balance cell, zeroed when no row exists yet.
	GetBalance(ctx context.Context, apiKey, currency string) (Balance, error)

	// Process sweeps the book: one execution attempt per opened order, then
	// confirmation of every unconfirmed transaction. It runs before and
	// after every authenticated adapter call.
	Process(ctx context.Context) error

	// Deposit credits funds directly, pre-marked confirmed. Used by the
	// faucet page.
	Deposit(ctx context.Context, apiKey, currency string, quantity decimal.Decimal) (*Transaction, error)
}
