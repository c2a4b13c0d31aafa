package bittrex

import (
	"github.com/shopspring/decimal"
)

// Fee model parameters
var (
	tradeFeePct   = decimal.RequireFromString("0.0025")
	minTradeTotal = decimal.RequireFromString("0.001") // BTC
)

const decimalScale = 8

// Error messages returned by the Bittrex API. Trading bots pattern-match on
// these strings, so they are part of the wire contract.
const (
	errMarketNotProvided   = "MARKET_NOT_PROVIDED"
	errCurrencyNotProvided = "CURRENCY_NOT_PROVIDED"
	errNonceNotProvided    = "NONCE_NOT_PROVIDED"
	errAPIKeyNotProvided   = "APIKEY_NOT_PROVIDED"
	errAPISignNotProvided  = "APISIGN_NOT_PROVIDED"
	errRateNotProvided     = "RATE_NOT_PROVIDED"
	errQuantityNotProvided = "QUANTITY_NOT_PROVIDED"
	errInvalidSignature    = "INVALID_SIGNATURE"
	errInvalidMarket       = "INVALID_MARKET"
	errInvalidCurrency     = "INVALID_CURRENCY"
	errQuantityInvalid     = "QUANTITY_INVALID"
	errRateInvalid         = "RATE_INVALID"
	errMinTradeNotMet      = "MIN_TRADE_REQUIREMENT_NOT_MET"
	errDustTrade           = "DUST_TRADE_DISALLOWED_MIN_VALUE_50K_SAT"
	errInsufficientFunds   = "INSUFFICIENT_FUNDS"
	errOrderNotOpen        = "ORDER_NOT_OPEN"
	errUUIDNotProvided     = "UUID_NOT_PROVIDED"
	errUUIDInvalid         = "UUID_INVALID"
	errInvalidOrder        = "INVALID_ORDER"
	errAddressGenerating   = "ADDRESS_GENERATING"
	errAddressNotProvided  = "ADDRESS_NOT_PROVIDED"
	errAddressInvalid      = "ADDRESS_INVALID"
)

// APIError is a Bittrex business error carrying one of the fixed messages
// above. It renders as the standard envelope with HTTP 200.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "bittrex api error: " + e.Message
}

func apiError(message string) *APIError {
	return &APIError{Message: message}
}

// Envelope is the fixed wrapper around every Bittrex response
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// Response wraps a successful result in the envelope
func Response(result any) Envelope {
	return Envelope{Success: true, Message: "", Result: result}
}

// Envelope renders a business error in the standard wrapper
func (e *APIError) Envelope() Envelope {
	return Envelope{Success: false, Message: e.Message, Result: nil}
}

// Market is one row of the upstream getmarkets reference data
type Market struct {
	MarketName     string
	BaseCurrency   string
	MarketCurrency string
	MinTradeSize   decimal.Decimal
}

// Currency is one row of the upstream getcurrencies reference data
type Currency struct {
	Currency string
	TxFee    decimal.Decimal
}

// UUIDResult is the result of buylimit, selllimit and withdraw
type UUIDResult struct {
	UUID string `json:"uuid"`
}

// Bittrex reports direction through its own order type strings
const (
	orderTypeBuyLimit  = "BUY_LIMIT"
	orderTypeSellLimit = "SELL_LIMIT"
)

// OpenOrder is the getopenorders view of an order
type OpenOrder struct {
	CancelInitiated   bool             `json:"CancelInitiated"`
	Closed            *string          `json:"Closed"`
	CommissionPaid    decimal.Decimal  `json:"CommissionPaid"`
	Condition         string           `json:"Condition"`
	ConditionTarget   *string          `json:"ConditionTarget"`
	Exchange          string           `json:"Exchange"`
	ImmediateOrCancel bool             `json:"ImmediateOrCancel"`
	IsConditional     bool             `json:"IsConditional"`
	Limit             decimal.Decimal  `json:"Limit"`
	Opened            string           `json:"Opened"`
	OrderType         string           `json:"OrderType"`
	OrderUUID         string           `json:"OrderUuid"`
	Price             decimal.Decimal  `json:"Price"`
	PricePerUnit      *decimal.Decimal `json:"PricePerUnit"`
	Quantity          decimal.Decimal  `json:"Quantity"`
	QuantityRemaining decimal.Decimal  `json:"QuantityRemaining"`
	UUID              *string          `json:"Uuid"`
}

// HistoryOrder is the getorderhistory view of an order
type HistoryOrder struct {
	Closed            *string          `json:"Closed"`
	Commission        decimal.Decimal  `json:"Commission"`
	Condition         string           `json:"Condition"`
	ConditionTarget   *string          `json:"ConditionTarget"`
	Exchange          string           `json:"Exchange"`
	ImmediateOrCancel bool             `json:"ImmediateOrCancel"`
	IsConditional     bool             `json:"IsConditional"`
	Limit             decimal.Decimal  `json:"Limit"`
	OrderType         string           `json:"OrderType"`
	OrderUUID         string           `json:"OrderUuid"`
	Price             decimal.Decimal  `json:"Price"`
	PricePerUnit      *decimal.Decimal `json:"PricePerUnit"`
	Quantity          decimal.Decimal  `json:"Quantity"`
	QuantityRemaining decimal.Decimal  `json:"QuantityRemaining"`
	TimeStamp         string           `json:"TimeStamp"`
}

// SingleOrder is the account getorder view of an order
type SingleOrder struct {
	AccountID                  *string          `json:"AccountId"`
	CancelInitiated            bool             `json:"CancelInitiated"`
	Closed                     *string          `json:"Closed"`
	CommissionPaid             decimal.Decimal  `json:"CommissionPaid"`
	CommissionReserveRemaining decimal.Decimal  `json:"CommissionReserveRemaining"`
	CommissionReserved         decimal.Decimal  `json:"CommissionReserved"`
	Condition                  string           `json:"Condition"`
	ConditionTarget            *string          `json:"ConditionTarget"`
	Exchange                   string           `json:"Exchange"`
	ImmediateOrCancel          bool             `json:"ImmediateOrCancel"`
	IsConditional              bool             `json:"IsConditional"`
	IsOpen                     bool             `json:"IsOpen"`
	Limit                      decimal.Decimal  `json:"Limit"`
	Opened                     string           `json:"Opened"`
	OrderUUID                  string           `json:"OrderUuid"`
	Price                      decimal.Decimal  `json:"Price"`
	PricePerUnit               *decimal.Decimal `json:"PricePerUnit"`
	Quantity                   decimal.Decimal  `json:"Quantity"`
	QuantityRemaining          decimal.Decimal  `json:"QuantityRemaining"`
	ReserveRemaining           decimal.Decimal  `json:"ReserveRemaining"`
	Reserved                   decimal.Decimal  `json:"Reserved"`
	Sentinel                   *string          `json:"Sentinel"`
}

// BalanceView is the getbalance(s) view of a ledger cell. CryptoAddress is
// always null; deposit address generation is not simulated.
type BalanceView struct {
	Currency      string          `json:"Currency"`
	Balance       decimal.Decimal `json:"Balance"`
	Available     decimal.Decimal `json:"Available"`
	Pending       decimal.Decimal `json:"Pending"`
	CryptoAddress *string         `json:"CryptoAddress"`
}

// DepositView is the getdeposithistory view of a transaction
type DepositView struct {
	Amount        decimal.Decimal `json:"Amount"`
	Confirmations int64           `json:"Confirmations"`
	CryptoAddress string          `json:"CryptoAddress"`
	Currency      string          `json:"Currency"`
	ID            string          `json:"Id"`
	LastUpdated   string          `json:"LastUpdated"`
	TxID          *string         `json:"TxId"`
}

// WithdrawalView is the getwithdrawalhistory view of a transaction
type WithdrawalView struct {
	Address        string          `json:"Address"`
	Amount         decimal.Decimal `json:"Amount"`
	Authorized     bool            `json:"Authorized"`
	Canceled       bool            `json:"Canceled"`
	Currency       string          `json:"Currency"`
	InvalidAddress bool            `json:"InvalidAddress"`
	Opened         string          `json:"Opened"`
	PaymentUUID    string          `json:"PaymentUuid"`
	PendingPayment bool            `json:"PendingPayment"`
	TxCost         decimal.Decimal `json:"TxCost"`
	TxID           *string         `json:"TxId"`
}
