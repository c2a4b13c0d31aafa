package poloniex

import (
	"github.com/shopspring/decimal"
)

// Fee model parameters
var (
	takerFeePct   = decimal.RequireFromString("0.002")
	makerFeePct   = decimal.RequireFromString("0.001")
	minTradeTotal = decimal.RequireFromString("0.0001") // BTC
)

const decimalScale = 8

// Trade history limit bounds; out-of-range values silently fall back
const (
	defaultTradeLimit = 500
	maxTradeLimit     = 10000
)

// Error messages returned by the Poloniex API. Trading bots pattern-match on
// these strings, so they are part of the wire contract. Two of them carry
// interpolated values, see nonceNotGreaterError and notEnoughError.
const (
	errInvalidCommand          = "Invalid command."
	errInvalidKeySecretPair    = "Invalid API key/secret pair."
	errInvalidAccount          = "Invalid account parameter."
	errInvalidCurrency         = "Invalid currency parameter."
	errInvalidStart            = "Invalid start parameter."
	errInvalidEnd              = "Invalid end parameter."
	errInvalidCurrencyPair     = "Invalid currencyPair parameter."
	errInvalidRate             = "Invalid rate parameter."
	errInvalidAmount           = "Invalid amount parameter."
	errInvalidAddress          = "Invalid address parameter."
	errRequiredParamMissing    = "Required parameter missing."
	errTotalTooSmall           = "Total must be at least 0.0001."
	errInvalidNonce            = "Invalid nonce parameter."
	errInvalidOrderNumber      = "Invalid orderNumber parameter."
	errOrderNotFound           = "Invalid order number, or you are not the person who placed the order."
)

// APIError is a Poloniex business error. It renders as {"error": message}
// with HTTP 200.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "poloniex api error: " + e.Message
}

func apiError(message string) *APIError {
	return &APIError{Message: message}
}

// ErrorView is the wire shape of a business error
type ErrorView struct {
	Error string `json:"error"`
}

// View renders the error in its wire shape
func (e *APIError) View() ErrorView {
	return ErrorView{Error: e.Message}
}

// Order statuses as returnOrderStatus spells them
const (
	orderStatusOpen            = "Open"
	orderStatusPartiallyFilled = "Partially filled"
)

const accountExchange = "exchange"

// Ticker is one row of the upstream returnTicker reference data
type Ticker struct {
	Last decimal.Decimal
}

// Currency is one row of the upstream returnCurrencies reference data
type Currency struct {
	TxFee decimal.Decimal
}

// CompleteBalance is one currency's returnCompleteBalances cell
type CompleteBalance struct {
	Available decimal.Decimal `json:"available"`
	OnOrders  decimal.Decimal `json:"onOrders"`
	BTCValue  decimal.Decimal `json:"btcValue"`
}

// GenerateAddressResult is the fixed generateNewAddress reply; address
// generation is not simulated
type GenerateAddressResult struct {
	Success  int `json:"success"`
	Response any `json:"response"`
}

// DepositView is the returnDepositsWithdrawals view of a deposit
type DepositView struct {
	Currency      string          `json:"currency"`
	Address       string          `json:"address"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
	TxID          *string         `json:"txid"`
	Timestamp     int64           `json:"timestamp"`
	Status        string          `json:"status"`
}

// WithdrawalView is the returnDepositsWithdrawals view of a withdrawal
type WithdrawalView struct {
	WithdrawalNumber any             `json:"withdrawalNumber"`
	Currency         string          `json:"currency"`
	Address          string          `json:"address"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        int64           `json:"timestamp"`
	Status           string          `json:"status"`
	IPAddress        *string         `json:"ipAddress"`
}

// DepositsWithdrawals is the returnDepositsWithdrawals reply
type DepositsWithdrawals struct {
	Deposits    []DepositView    `json:"deposits"`
	Withdrawals []WithdrawalView `json:"withdrawals"`
}

// OrderView is the returnOpenOrders view of an order
type OrderView struct {
	OrderNumber any             `json:"orderNumber"`
	Type        string          `json:"type"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	Total       decimal.Decimal `json:"total"`
}

// OrderStatusView is the returnOrderStatus view of an open order
type OrderStatusView struct {
	Status         string          `json:"status"`
	Rate           decimal.Decimal `json:"rate"`
	Amount         decimal.Decimal `json:"amount"`
	CurrencyPair   string          `json:"currencyPair"`
	Date           string          `json:"date"`
	Total          decimal.Decimal `json:"total"`
	Type           string          `json:"type"`
	StartingAmount decimal.Decimal `json:"startingAmount"`
}

// OrderStatusResult wraps returnOrderStatus; success is 0 with no result for
// anything but an open order
type OrderStatusResult struct {
	Result  map[string]OrderStatusView `json:"result,omitempty"`
	Success int                        `json:"success"`
}

// TradeView is the trade history view of a fill
type TradeView struct {
	GlobalTradeID int64           `json:"globalTradeID"`
	TradeID       int64           `json:"tradeID"`
	Date          string          `json:"date"`
	Rate          decimal.Decimal `json:"rate"`
	Amount        decimal.Decimal `json:"amount"`
	Total         decimal.Decimal `json:"total"`
	Fee           decimal.Decimal `json:"fee"`
	OrderNumber   any             `json:"orderNumber"`
	Type          string          `json:"type"`
	Category      string          `json:"category"`
}

// OrderResult is the buy/sell reply. Resulting trades are never reported;
// fills only happen on later sweeps.
type OrderResult struct {
	OrderNumber     int64 `json:"orderNumber"`
	ResultingTrades any   `json:"resultingTrades"`
}

// CancelResult is the cancelOrder reply
type CancelResult struct {
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
	Success int             `json:"success"`
}

// WithdrawResult is the withdraw reply
type WithdrawResult struct {
	Response string `json:"response"`
}

// FeeInfo is the returnFeeInfo reply
type FeeInfo struct {
	MakerFee        decimal.Decimal `json:"makerFee"`
	TakerFee        decimal.Decimal `json:"takerFee"`
	ThirtyDayVolume decimal.Decimal `json:"thirtyDayVolume"`
	NextTier        decimal.Decimal `json:"nextTier"`
}
