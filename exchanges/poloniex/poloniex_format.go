package poloniex

import (
	"math/big"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	exchange "github.com/thrasher-corp/testex/exchanges"
)

// Poloniex datetimes are second-resolution UTC
const timeFormat = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimestamp(t time.Time) int64 {
	return t.Unix()
}

// btcMarket names the pair a currency trades against BTC on
func btcMarket(currency string) string {
	return "BTC_" + currency
}

// documentNumber turns a stored id back into the numeric form Poloniex
// reports. Ids minted by other dialects stay strings, exactly as stored.
func documentNumber(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// Trade ids fold the stored uuid into the two integer id spaces Poloniex
// uses on the wire
const (
	globalTradeIDSpace = 1 << 32
	tradeIDSpace       = 1 << 20
)

func foldTradeID(id string, space int64) int64 {
	u, err := uuid.FromString(id)
	if err != nil {
		return 0
	}
	n := new(big.Int).SetBytes(u.Bytes())
	return n.Mod(n, big.NewInt(space)).Int64()
}

func formatBalance(b exchange.Balance, tickers map[string]Ticker) CompleteBalance {
	last := tickers[btcMarket(b.Currency)].Last
	return CompleteBalance{
		Available: b.Available,
		OnOrders:  b.Frozen,
		BTCValue:  b.Available.Add(b.Frozen).Mul(last).RoundBank(decimalScale),
	}
}

func formatDeposit(tx exchange.Transaction) DepositView {
	status := ""
	if tx.Status == exchange.Confirmed {
		status = "COMPLETE"
	}
	var txid *string
	if tx.Hash != "" {
		h := tx.Hash
		txid = &h
	}
	return DepositView{
		Currency:      tx.Currency,
		Address:       tx.Address,
		Amount:        tx.Amount,
		Confirmations: tx.Confirmations,
		TxID:          txid,
		Timestamp:     formatTimestamp(tx.CreatedAt),
		Status:        status,
	}
}

func formatWithdrawal(tx exchange.Transaction) WithdrawalView {
	status := ""
	if tx.Status == exchange.Confirmed {
		status = "COMPLETE: " + tx.Hash
	}
	return WithdrawalView{
		WithdrawalNumber: documentNumber(tx.ID),
		Currency:         tx.Currency,
		Address:          tx.Address,
		Amount:           tx.Amount,
		Timestamp:        formatTimestamp(tx.CreatedAt),
		Status:           status,
	}
}

func formatOrder(o exchange.ExtendedOrder) OrderView {
	return OrderView{
		OrderNumber: documentNumber(o.ID),
		Type:        string(o.Direction),
		Rate:        o.Price,
		Amount:      o.Amount,
		Total:       o.Total,
	}
}

// formatOrderStatus renders an open order for returnOrderStatus
func formatOrderStatus(o exchange.ExtendedOrder) OrderStatusView {
	status := orderStatusOpen
	if !o.ExecutedAmount.IsZero() {
		status = orderStatusPartiallyFilled
	}
	return OrderStatusView{
		Status:         status,
		Rate:           o.Price,
		Amount:         o.Amount,
		CurrencyPair:   o.Market,
		Date:           formatTime(o.CreatedAt),
		Total:          o.Total,
		Type:           string(o.Direction),
		StartingAmount: o.RemainingAmount,
	}
}

func formatTrade(t exchange.Trade) TradeView {
	return TradeView{
		GlobalTradeID: foldTradeID(t.ID, globalTradeIDSpace),
		TradeID:       foldTradeID(t.ID, tradeIDSpace),
		Date:          formatTime(t.CreatedAt),
		Rate:          t.Price,
		Amount:        t.Amount,
		Total:         t.Price.Mul(t.Amount).RoundBank(decimalScale),
		Fee:           takerFeePct,
		OrderNumber:   documentNumber(t.OrderNumber),
		Type:          string(t.Direction),
		Category:      "exchange",
	}
}

// parseTimestamp reads a unix-seconds parameter, failing with the given
// message on anything unparsable including an absent value
func parseTimestamp(value, message string) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, apiError(message)
	}
	return time.Unix(n, 0).UTC(), nil
}

// parseLimit clamps the trade history page size; anything unusable falls
// back to the default instead of erroring
func parseLimit(value string) int64 {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 || n > maxTradeLimit {
		return defaultTradeLimit
	}
	return n
}

func parseDecimal(value, message string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Decimal{}, apiError(errRequiredParamMissing)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, apiError(message)
	}
	return d, nil
}
