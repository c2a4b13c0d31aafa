package bittrex

import (
	"time"

	"github.com/shopspring/decimal"
	exchange "github.com/thrasher-corp/testex/exchanges"
)

// Bittrex timestamps carry milliseconds, truncated from the UTC time
const timeFormat = "2006-01-02T15:04:05.000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func orderType(direction exchange.OrderDirection) string {
	if direction == exchange.Sell {
		return orderTypeSellLimit
	}
	return orderTypeBuyLimit
}

func closedAt(o exchange.ExtendedOrder) *string {
	if o.Status != exchange.Closed {
		return nil
	}
	s := formatTime(o.UpdatedAt)
	return &s
}

func pricePerUnit(o exchange.ExtendedOrder) *decimal.Decimal {
	if o.ExecutedAmount.IsZero() {
		return nil
	}
	avg := o.AveragePrice
	return &avg
}

func formatOpenOrder(o exchange.ExtendedOrder) OpenOrder {
	return OpenOrder{
		Closed:            closedAt(o),
		CommissionPaid:    o.Fee,
		Condition:         "NONE",
		Exchange:          o.Market,
		Limit:             o.Price,
		Opened:            formatTime(o.CreatedAt),
		OrderType:         orderType(o.Direction),
		OrderUUID:         o.ID,
		Price:             o.Price,
		PricePerUnit:      pricePerUnit(o),
		Quantity:          o.Amount,
		QuantityRemaining: o.RemainingAmount,
	}
}

func formatHistoryOrder(o exchange.ExtendedOrder) HistoryOrder {
	return HistoryOrder{
		Closed:            closedAt(o),
		Commission:        o.Fee,
		Condition:         "NONE",
		Exchange:          o.Market,
		Limit:             o.Price,
		OrderType:         orderType(o.Direction),
		OrderUUID:         o.ID,
		Price:             o.Price,
		PricePerUnit:      pricePerUnit(o),
		Quantity:          o.Amount,
		QuantityRemaining: o.RemainingAmount,
		TimeStamp:         formatTime(o.CreatedAt),
	}
}

func formatSingleOrder(o exchange.ExtendedOrder) SingleOrder {
	return SingleOrder{
		Closed:                     closedAt(o),
		CommissionPaid:             o.Fee,
		CommissionReserveRemaining: decimal.Max(decimal.Decimal{}, o.ReservedFee.Sub(o.Fee)),
		CommissionReserved:         o.ReservedFee,
		Condition:                  "NONE",
		Exchange:                   o.Market,
		IsOpen:                     o.Status != exchange.Closed,
		Limit:                      o.Price,
		Opened:                     formatTime(o.CreatedAt),
		OrderUUID:                  o.ID,
		Price:                      o.Price,
		PricePerUnit:               pricePerUnit(o),
		Quantity:                   o.Amount,
		QuantityRemaining:          o.RemainingAmount,
		ReserveRemaining:           o.Reserved.Sub(o.Total),
		Reserved:                   o.Reserved,
	}
}

func formatBalance(b exchange.Balance) BalanceView {
	return BalanceView{
		Currency:  b.Currency,
		Balance:   b.Available.Add(b.Pending).Add(b.Frozen),
		Available: b.Available,
		Pending:   b.Pending,
	}
}

func txID(tx exchange.Transaction) *string {
	if tx.Hash == "" {
		return nil
	}
	h := tx.Hash
	return &h
}

func formatDeposit(tx exchange.Transaction) DepositView {
	lastUpdated := tx.UpdatedAt
	if lastUpdated.IsZero() {
		lastUpdated = tx.CreatedAt
	}
	return DepositView{
		Amount:        tx.Amount,
		Confirmations: tx.Confirmations,
		CryptoAddress: tx.Address,
		Currency:      tx.Currency,
		ID:            tx.ID,
		LastUpdated:   formatTime(lastUpdated),
		TxID:          txID(tx),
	}
}

func formatWithdrawal(tx exchange.Transaction) WithdrawalView {
	return WithdrawalView{
		Address: tx.Address,
		Amount:  tx.Amount,
		Authorized: tx.Status != exchange.NonAuthorized &&
			tx.Status != exchange.Canceled,
		Canceled:       tx.Status == exchange.Canceled,
		Currency:       tx.Currency,
		Opened:         formatTime(tx.CreatedAt),
		PaymentUUID:    tx.ID,
		PendingPayment: tx.Status == exchange.Pending,
		TxCost:         tx.Fee,
		TxID:           txID(tx),
	}
}
