package store

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"go.uber.org/zap"
)

// Memory is an in-process Store with the same semantics as Mongo, used by
// tests and by dev mode when no mongod is around. One mutex covers all four
// collections, so every operation is as atomic as its database counterpart.
type Memory struct {
	mu           sync.Mutex
	orders       []exchange.Order
	trades       []exchange.Trade
	transactions []exchange.Transaction
	balances     []exchange.Balance
}

// NewMemory returns an empty in-memory store
func NewMemory(_ *zap.Logger) *Memory {
	return &Memory{}
}

// Close is a no-op for the in-memory store
func (m *Memory) Close(_ context.Context) error { return nil }

// InsertOrder inserts a new order document
func (m *Memory) InsertOrder(_ context.Context, o exchange.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.orders {
		if m.orders[i].ID == o.ID {
			return ErrDuplicateID
		}
	}
	m.orders = append(m.orders, o)
	return nil
}

// FindOrder fetches one order scoped to an api key
func (m *Memory) FindOrder(_ context.Context, apiKey, number string) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.orders {
		if m.orders[i].ID == number && m.orders[i].APIKey == apiKey {
			o := m.orders[i]
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

// FindOrders lists an api key's orders by status, optionally narrowed to a
// market
func (m *Memory) FindOrders(_ context.Context, apiKey string, status exchange.OrderStatus, market string) ([]exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []exchange.Order
	for i := range m.orders {
		o := m.orders[i]
		if o.APIKey != apiKey || o.Status != status {
			continue
		}
		if market != "" && o.Market != market {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// FindOpenOrders lists every opened order across api keys
func (m *Memory) FindOpenOrders(_ context.Context) ([]exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []exchange.Order
	for i := range m.orders {
		if m.orders[i].Status == exchange.Opened {
			out = append(out, m.orders[i])
		}
	}
	return out, nil
}

// ApplyOrderFill increments executed_amount and sets the new average price,
// status and update time, gated on status=opened
func (m *Memory) ApplyOrderFill(_ context.Context, number string, fill, averagePrice decimal.Decimal, status exchange.OrderStatus, at time.Time) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.orders {
		if m.orders[i].ID != number || m.orders[i].Status != exchange.Opened {
			continue
		}
		m.orders[i].ExecutedAmount = m.orders[i].ExecutedAmount.Add(fill)
		m.orders[i].AveragePrice = averagePrice
		m.orders[i].Status = status
		m.orders[i].UpdatedAt = at
		o := m.orders[i]
		return &o, nil
	}
	return nil, ErrNotFound
}

// CloseOrder transitions an opened order to closed
func (m *Memory) CloseOrder(_ context.Context, apiKey, number string, at time.Time) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.orders {
		o := &m.orders[i]
		if o.ID != number || o.APIKey != apiKey || o.Status != exchange.Opened {
			continue
		}
		o.Status = exchange.Closed
		o.UpdatedAt = at
		closed := *o
		return &closed, nil
	}
	return nil, ErrNotFound
}

// InsertTrade inserts a new trade document
func (m *Memory) InsertTrade(_ context.Context, t exchange.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.trades {
		if m.trades[i].ID == t.ID {
			return ErrDuplicateID
		}
	}
	m.trades = append(m.trades, t)
	return nil
}

// FindTrades lists an api key's trades matching the filter
func (m *Memory) FindTrades(_ context.Context, apiKey string, filter exchange.TradeFilter) ([]exchange.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []exchange.Trade
	for i := range m.trades {
		t := m.trades[i]
		if t.APIKey != apiKey {
			continue
		}
		if filter.OrderNumber != "" && t.OrderNumber != filter.OrderNumber {
			continue
		}
		if filter.Market != "" && t.Market != filter.Market {
			continue
		}
		if !inInterval(t.CreatedAt, filter.StartAt, filter.EndAt) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && int64(len(out)) == filter.Limit {
			break
		}
	}
	return out, nil
}

// InsertTransaction inserts a new transaction document
func (m *Memory) InsertTransaction(_ context.Context, tx exchange.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.transactions {
		if m.transactions[i].ID == tx.ID {
			return ErrDuplicateID
		}
	}
	m.transactions = append(m.transactions, tx)
	return nil
}

// FindTransactions lists an api key's transactions matching the filter
func (m *Memory) FindTransactions(_ context.Context, apiKey string, filter exchange.TransactionFilter) ([]exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []exchange.Transaction
	for i := range m.transactions {
		tx := m.transactions[i]
		if tx.APIKey != apiKey {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Currency != "" && tx.Currency != filter.Currency {
			continue
		}
		if !inInterval(tx.CreatedAt, filter.StartAt, filter.EndAt) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// FindUnconfirmedTransactions lists every transaction not yet confirmed
func (m *Memory) FindUnconfirmedTransactions(_ context.Context) ([]exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []exchange.Transaction
	for i := range m.transactions {
		if m.transactions[i].Status != exchange.Confirmed {
			out = append(out, m.transactions[i])
		}
	}
	return out, nil
}

// ConfirmTransaction sets a transaction's status to confirmed
func (m *Memory) ConfirmTransaction(_ context.Context, apiKey, id string, at time.Time) (*exchange.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.transactions {
		tx := &m.transactions[i]
		if tx.ID != id || tx.APIKey != apiKey {
			continue
		}
		tx.Status = exchange.Confirmed
		tx.UpdatedAt = at
		confirmed := *tx
		return &confirmed, nil
	}
	return nil, ErrNotFound
}

// FindBalances lists every balance row for an api key
func (m *Memory) FindBalances(_ context.Context, apiKey string) ([]exchange.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []exchange.Balance
	for i := range m.balances {
		if m.balances[i].APIKey == apiKey {
			out = append(out, m.balances[i])
		}
	}
	return out, nil
}

// FindBalance fetches one balance cell
func (m *Memory) FindBalance(_ context.Context, apiKey, currency string) (*exchange.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.balances {
		if m.balances[i].APIKey == apiKey && m.balances[i].Currency == currency {
			b := m.balances[i]
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

// IncrementBalance applies one currency's delta, inserting the row with a
// fresh uuid id when it does not exist yet
func (m *Memory) IncrementBalance(_ context.Context, apiKey, currency string, delta exchange.BalanceDelta) error {
	if delta.Available.IsZero() && delta.Frozen.IsZero() && delta.Pending.IsZero() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.balances {
		b := &m.balances[i]
		if b.APIKey == apiKey && b.Currency == currency {
			b.Available = b.Available.Add(delta.Available)
			b.Frozen = b.Frozen.Add(delta.Frozen)
			b.Pending = b.Pending.Add(delta.Pending)
			return nil
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	m.balances = append(m.balances, exchange.Balance{
		ID:        id.String(),
		APIKey:    apiKey,
		Currency:  currency,
		Available: delta.Available,
		Frozen:    delta.Frozen,
		Pending:   delta.Pending,
	})
	return nil
}

func inInterval(at, start, end time.Time) bool {
	if !start.IsZero() && !at.After(start) {
		return false
	}
	if !end.IsZero() && !at.Before(end) {
		return false
	}
	return true
}
