package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDirection is the side of an order. The literal strings appear in
// stored records, so they must stay stable.
type OrderDirection string

// Order directions
const (
	Buy  OrderDirection = "buy"
	Sell OrderDirection = "sell"
)

// Sign returns +1 for buys and -1 for sells
func (d OrderDirection) Sign() int {
	if d == Sell {
		return -1
	}
	return 1
}

// OrderType describes how an order interacts with the book
type OrderType string

// Order types
const (
	Limit             OrderType = "limit"
	FillOrKill        OrderType = "fill_or_kill"
	ImmediateOrCancel OrderType = "immediate_or_cancel"
	PostOnly          OrderType = "post_only"
)

// OrderTypeFromFlags collapses the three Poloniex order flags into a single
// order type. Any non-empty flag value counts as set; fill-or-kill takes
// precedence over immediate-or-cancel, which takes precedence over post-only.
func OrderTypeFromFlags(fillOrKill, immediateOrCancel, postOnly string) OrderType {
	switch {
	case fillOrKill != "":
		return FillOrKill
	case immediateOrCancel != "":
		return ImmediateOrCancel
	case postOnly != "":
		return PostOnly
	default:
		return Limit
	}
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	Opened OrderStatus = "opened"
	Closed OrderStatus = "closed"
)

// TransactionType distinguishes deposits from withdrawals
type TransactionType string

// Transaction types
const (
	Deposit    TransactionType = "deposit"
	Withdrawal TransactionType = "withdrawal"
)

// Sign returns +1 for deposits and -1 for withdrawals
func (t TransactionType) Sign() int {
	if t == Withdrawal {
		return -1
	}
	return 1
}

// TransactionStatus is the lifecycle state of a deposit or withdrawal
type TransactionStatus string

// Transaction statuses
const (
	NonAuthorized TransactionStatus = "non_authorized"
	Canceled      TransactionStatus = "canceled"
	Pending       TransactionStatus = "pending"
	Confirmed     TransactionStatus = "confirmed"
)

// Order is one party's intent to buy or sell on a market. Field names in
// the store are fixed; existing data must keep loading across releases.
type Order struct {
	ID             string          `bson:"_id" json:"_id"`
	APIKey         string          `bson:"api_key" json:"api_key"`
	ExchangeID     string          `bson:"exchange_id" json:"exchange_id"`
	Market         string          `bson:"market" json:"market"`
	Direction      OrderDirection  `bson:"direction" json:"direction"`
	Type           OrderType       `bson:"type,omitempty" json:"type,omitempty"`
	Price          decimal.Decimal `bson:"price" json:"price"`
	Amount         decimal.Decimal `bson:"amount" json:"amount"`
	ExecutedAmount decimal.Decimal `bson:"executed_amount" json:"executed_amount"`
	AveragePrice   decimal.Decimal `bson:"average_price" json:"average_price"`
	BaseCurrency   string          `bson:"base_currency" json:"base_currency"`
	MarketCurrency string          `bson:"market_currency" json:"market_currency"`
	FeeCurrency    string          `bson:"fee_currency" json:"fee_currency"`
	Status         OrderStatus     `bson:"status" json:"status"`
	CreatedAt      time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// ExtendedOrder is an Order plus the derived fields an adapter's fee model
// computes on read. Derived fields are never stored.
type ExtendedOrder struct {
	Order
	RemainingAmount decimal.Decimal
	Total           decimal.Decimal
	Fee             decimal.Decimal
	Reserved        decimal.Decimal
	ReservedFee     decimal.Decimal
}

// Trade is a single fill event against an order, always at the order's
// posted price
type Trade struct {
	ID          string          `bson:"_id" json:"_id"`
	APIKey      string          `bson:"api_key" json:"api_key"`
	OrderNumber string          `bson:"order_number" json:"order_number"`
	Direction   OrderDirection  `bson:"direction" json:"direction"`
	Price       decimal.Decimal `bson:"price" json:"price"`
	Amount      decimal.Decimal `bson:"amount" json:"amount"`
	Market      string          `bson:"market" json:"market"`
	CreatedAt   time.Time       `bson:"created_at" json:"created_at"`
}

// Transaction is a deposit or withdrawal
type Transaction struct {
	ID            string            `bson:"_id" json:"_id"`
	APIKey        string            `bson:"api_key" json:"api_key"`
	ExchangeID    string            `bson:"exchange_id,omitempty" json:"exchange_id,omitempty"`
	Type          TransactionType   `bson:"type" json:"type"`
	Currency      string            `bson:"currency" json:"currency"`
	Amount        decimal.Decimal   `bson:"amount" json:"amount"`
	Address       string            `bson:"address" json:"address"`
	Fee           decimal.Decimal   `bson:"fee" json:"fee"`
	PaymentID     string            `bson:"payment_id,omitempty" json:"payment_id,omitempty"`
	Hash          string            `bson:"hash,omitempty" json:"hash,omitempty"`
	Confirmations int64             `bson:"confirmations,omitempty" json:"confirmations,omitempty"`
	Status        TransactionStatus `bson:"status" json:"status"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Balance is the per (api_key, currency) ledger cell
type Balance struct {
	ID        string          `bson:"_id" json:"_id"`
	APIKey    string          `bson:"api_key" json:"api_key"`
	Currency  string          `bson:"currency" json:"currency"`
	Available decimal.Decimal `bson:"available" json:"available"`
	Frozen    decimal.Decimal `bson:"frozen" json:"frozen"`
	Pending   decimal.Decimal `bson:"pending" json:"pending"`
}

// Total returns available + frozen + pending
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Frozen).Add(b.Pending)
}

// BalanceDelta is one currency's worth of movement applied by a single
// bookkeeping event
type BalanceDelta struct {
	Available decimal.Decimal
	Frozen    decimal.Decimal
	Pending   decimal.Decimal
}

// Add merges another delta into this one
func (d BalanceDelta) Add(o BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Available: d.Available.Add(o.Available),
		Frozen:    d.Frozen.Add(o.Frozen),
		Pending:   d.Pending.Add(o.Pending),
	}
}

// BalanceIncrements batches every currency's delta for one bookkeeping
// event, keyed by currency code
type BalanceIncrements map[string]BalanceDelta

// Add merges a delta into the batch
func (b BalanceIncrements) Add(currency string, d BalanceDelta) {
	b[currency] = b[currency].Add(d)
}

// TransactionFilter narrows GetTransactions. Zero values mean no filter.
type TransactionFilter struct {
	Type     TransactionType
	Currency string
	StartAt  time.Time
	EndAt    time.Time
}

// TradeFilter narrows GetTrades. Zero values mean no filter.
type TradeFilter struct {
	OrderNumber string
	Market      string
	Limit       int64
	StartAt     time.Time
	EndAt       time.Time
}
