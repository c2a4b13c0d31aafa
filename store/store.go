package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	exchange "github.com/thrasher-corp/testex/exchanges"
)

// Collection names. These are part of the persisted contract; renaming one
// strands existing data.
const (
	CollectionOrders       = "orders"
	CollectionTrades       = "trades"
	CollectionTransactions = "transactions"
	CollectionBalances     = "balances"
)

var (
	// ErrNotFound is returned when no document matches a lookup or a
	// find-and-modify filter.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateID is returned when an insert collides with an existing
	// document id.
	ErrDuplicateID = errors.New("duplicate document id")
)

// Store is the document persistence layer behind the executor: four
// collections, find-and-modify returning the updated document, and atomic
// balance increments with upsert. Implementations translate decimals on
// write and restore them on every read path.
type Store interface {
	// InsertOrder inserts a new order document.
	InsertOrder(ctx context.Context, o exchange.Order) error
	// FindOrder fetches one order scoped to an api key. ErrNotFound when
	// absent.
	FindOrder(ctx context.Context, apiKey, number string) (*exchange.Order, error)
	// FindOrders lists orders by status, optionally narrowed to a market.
	FindOrders(ctx context.Context, apiKey string, status exchange.OrderStatus, market string) ([]exchange.Order, error)
	// FindOpenOrders lists every opened order across api keys, in insertion
	// order. Used by the sweep.
	FindOpenOrders(ctx context.Context) ([]exchange.Order, error)
	// ApplyOrderFill atomically increments executed_amount and sets the new
	// average price, status and update time, returning the updated document.
	// The filter gates on status=opened so a fill racing a cancel settles at
	// most once; ErrNotFound when the gate misses.
	ApplyOrderFill(ctx context.Context, number string, fill, averagePrice decimal.Decimal, status exchange.OrderStatus, at time.Time) (*exchange.Order, error)
	// CloseOrder atomically transitions an opened order to closed, returning
	// the updated document. ErrNotFound when absent or already closed.
	CloseOrder(ctx context.Context, apiKey, number string, at time.Time) (*exchange.Order, error)

	// InsertTrade inserts a new trade document.
	InsertTrade(ctx context.Context, t exchange.Trade) error
	// FindTrades lists an api key's trades matching the filter, in insertion
	// order.
	FindTrades(ctx context.Context, apiKey string, filter exchange.TradeFilter) ([]exchange.Trade, error)

	// InsertTransaction inserts a new transaction document.
	InsertTransaction(ctx context.Context, tx exchange.Transaction) error
	// FindTransactions lists an api key's transactions matching the filter.
	FindTransactions(ctx context.Context, apiKey string, filter exchange.TransactionFilter) ([]exchange.Transaction, error)
	// FindUnconfirmedTransactions lists every transaction not yet confirmed,
	// across api keys. Used by the sweep.
	FindUnconfirmedTransactions(ctx context.Context) ([]exchange.Transaction, error)
	// ConfirmTransaction sets a transaction's status to confirmed, returning
	// the updated document. ErrNotFound when absent.
	ConfirmTransaction(ctx context.Context, apiKey, id string, at time.Time) (*exchange.Transaction, error)

	// FindBalances lists every balance row for an api key.
	FindBalances(ctx context.Context, apiKey string) ([]exchange.Balance, error)
	// FindBalance fetches one balance cell. ErrNotFound when no row exists.
	FindBalance(ctx context.Context, apiKey, currency string) (*exchange.Balance, error)
	// IncrementBalance applies one currency's delta atomically, inserting the
	// row in the same logical step when it does not exist yet.
	IncrementBalance(ctx context.Context, apiKey, currency string, delta exchange.BalanceDelta) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
