package poloniex

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/testex/common/crypto"
	"github.com/thrasher-corp/testex/currency"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/exchanges/nonce"
	"go.uber.org/zap"
)

// ExchangeID scopes this dialect's orders in the shared store
const ExchangeID = "poloniex"

// ErrNotImplemented marks commands the venue documents but this backend
// does not simulate. The router renders it as a plain HTTP 501.
var ErrNotImplemented = errors.New("command not implemented")

// ReferenceData supplies the upstream ticker and currency tables used for
// request validation and BTC pricing. *Proxy satisfies it.
type ReferenceData interface {
	Tickers(ctx context.Context) (map[string]Ticker, error)
	Currencies(ctx context.Context) (map[string]Currency, error)
}

// Stub emulates the Poloniex v1.0 trading API on top of the executor. It is
// stateless per request apart from the nonce ladder; the authenticated api
// key is threaded through every call rather than stored.
type Stub struct {
	exec    exchange.Executor
	ref     ReferenceData
	log     *zap.Logger
	nonces  *nonce.Ladder
	numbers func() int64
}

// NewStub returns a Poloniex dialect stub registered with the executor
func NewStub(exec exchange.Executor, ref ReferenceData, log *zap.Logger) *Stub {
	s := &Stub{
		exec:    exec,
		ref:     ref,
		log:     log,
		nonces:  nonce.NewLadder(),
		numbers: defaultNumber,
	}
	exec.RegisterAdapter(s)
	return s
}

// Poloniex identifies orders and withdrawals by opaque numbers rather than
// uuids
func defaultNumber() int64 {
	return rand.Int63n(999999999) + 1
}

// ExchangeID implements exchange.Adapter
func (s *Stub) ExchangeID() string { return ExchangeID }

// ExtendOrder populates the derived fields per the Poloniex fee model: the
// taker fee is 0.2%, charged on the bought amount for buys and on the trade
// total for sells. Nothing is reserved for fees up front.
func (s *Stub) ExtendOrder(o exchange.Order) exchange.ExtendedOrder {
	ext := exchange.ExtendedOrder{Order: o}
	ext.Total = o.ExecutedAmount.Mul(o.AveragePrice).RoundBank(decimalScale)
	ext.RemainingAmount = o.Amount.Sub(o.ExecutedAmount)

	if o.Direction == exchange.Buy {
		ext.Reserved = o.Amount.Mul(o.Price).RoundBank(decimalScale)
		ext.Fee = o.ExecutedAmount.Mul(takerFeePct).RoundBank(decimalScale)
	} else {
		ext.Reserved = o.Amount
		ext.Fee = ext.Total.Mul(takerFeePct).RoundBank(decimalScale)
	}
	return ext
}

// Authenticate validates a signed trading request and returns the api key
// it belongs to. The nonce is consumed before the key and signature are
// looked at, so a replayed request burns its nonce even when its signature
// is garbage. The signature is the HMAC-SHA512 hex of the raw request body,
// keyed with the user's secret, which in this simulation is the api key
// itself.
func (s *Stub) Authenticate(body, apiKey, apiSign, nonceParam string) (string, error) {
	n, err := strconv.ParseInt(nonceParam, 10, 64)
	if err != nil {
		return "", apiError(errInvalidNonce)
	}
	if prev, ok := s.nonces.Check(apiKey, n); !ok {
		return "", apiError(fmt.Sprintf(
			"Nonce must be greater than %d. You provided %d.", prev, n))
	}

	if apiKey == "" || apiSign == "" || crypto.SignMessage(body, apiKey) != apiSign {
		return "", apiError(errInvalidKeySecretPair)
	}
	return apiKey, nil
}

func (s *Stub) parseCurrency(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", apiError(errRequiredParamMissing)
	}
	currencies, err := s.ref.Currencies(ctx)
	if err != nil {
		return "", err
	}
	if _, ok := currencies[code]; !ok {
		return "", apiError(errInvalidCurrency)
	}
	return code, nil
}

// parseCurrencyPair validates a currencyPair parameter against the live
// ticker table. The literal "all" collapses to the empty filter.
func (s *Stub) parseCurrencyPair(ctx context.Context, pair string) (string, error) {
	if pair == "" {
		return "", apiError(errRequiredParamMissing)
	}
	if pair == "all" {
		return "", nil
	}
	tickers, err := s.ref.Tickers(ctx)
	if err != nil {
		return "", err
	}
	if _, ok := tickers[pair]; !ok {
		return "", apiError(errInvalidCurrencyPair)
	}
	return pair, nil
}

func splitCurrencyPair(pair string) (base, market string) {
	parts := strings.SplitN(pair, "_", 2)
	if len(parts) < 2 {
		return pair, ""
	}
	return parts[0], parts[1]
}

func (s *Stub) checkBalance(ctx context.Context, apiKey string, amount decimal.Decimal, code string) error {
	b, err := s.exec.GetBalance(ctx, apiKey, code)
	if err != nil {
		return err
	}
	if amount.GreaterThan(b.Available) {
		return apiError(fmt.Sprintf("Not enough %s.", code))
	}
	return nil
}

// getOrder resolves an orderNumber parameter to the caller's order
func (s *Stub) getOrder(ctx context.Context, apiKey, number string) (*exchange.ExtendedOrder, error) {
	if number == "" {
		return nil, apiError(errRequiredParamMissing)
	}
	if _, err := strconv.ParseInt(number, 10, 64); err != nil {
		return nil, apiError(errInvalidOrderNumber)
	}

	o, err := s.exec.GetOrder(ctx, apiKey, number)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		return nil, apiError(errOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ReturnBalances maps every listed currency to its available balance,
// zero-filled from the full upstream currency table
func (s *Stub) ReturnBalances(ctx context.Context, apiKey string) (map[string]decimal.Decimal, error) {
	currencies, err := s.ref.Currencies(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(currencies))
	for code := range currencies {
		result[code] = decimal.Decimal{}
	}

	balances, err := s.exec.GetBalances(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	for _, b := range balances {
		result[b.Currency] = b.Available
	}
	return result, nil
}

// ReturnCompleteBalances lists touched currencies with on-order amounts and
// BTC valuations. Only the exchange account exists.
func (s *Stub) ReturnCompleteBalances(ctx context.Context, apiKey, account string) (map[string]CompleteBalance, error) {
	if account != "" && account != accountExchange {
		return nil, apiError(errInvalidAccount)
	}

	tickers, err := s.ref.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := s.exec.GetBalances(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	result := make(map[string]CompleteBalance, len(balances))
	for _, b := range balances {
		result[b.Currency] = formatBalance(b, tickers)
	}
	return result, nil
}

// ReturnDepositAddresses is always empty; address generation is not
// simulated
func (s *Stub) ReturnDepositAddresses() map[string]string {
	return map[string]string{}
}

// GenerateNewAddress validates the currency and reports failure; address
// generation is not simulated
func (s *Stub) GenerateNewAddress(ctx context.Context, code string) (GenerateAddressResult, error) {
	if _, err := s.parseCurrency(ctx, code); err != nil {
		return GenerateAddressResult{}, err
	}
	return GenerateAddressResult{Success: 0, Response: nil}, nil
}

// ReturnDepositsWithdrawals lists the api key's transactions in the
// required start/end window, split by type
func (s *Stub) ReturnDepositsWithdrawals(ctx context.Context, apiKey, start, end string) (DepositsWithdrawals, error) {
	startAt, err := parseTimestamp(start, errInvalidStart)
	if err != nil {
		return DepositsWithdrawals{}, err
	}
	endAt, err := parseTimestamp(end, errInvalidEnd)
	if err != nil {
		return DepositsWithdrawals{}, err
	}

	txs, err := s.exec.GetTransactions(ctx, apiKey, exchange.TransactionFilter{
		StartAt: startAt,
		EndAt:   endAt,
	})
	if err != nil {
		return DepositsWithdrawals{}, err
	}

	result := DepositsWithdrawals{
		Deposits:    []DepositView{},
		Withdrawals: []WithdrawalView{},
	}
	for _, tx := range txs {
		switch tx.Type {
		case exchange.Deposit:
			result.Deposits = append(result.Deposits, formatDeposit(tx))
		case exchange.Withdrawal:
			result.Withdrawals = append(result.Withdrawals, formatWithdrawal(tx))
		}
	}
	return result, nil
}

// ReturnOpenOrders lists open orders for one pair, or grouped by pair for
// "all"
func (s *Stub) ReturnOpenOrders(ctx context.Context, apiKey, currencyPair string) (any, error) {
	pair, err := s.parseCurrencyPair(ctx, currencyPair)
	if err != nil {
		return nil, err
	}

	orders, err := s.exec.GetOrders(ctx, apiKey, exchange.Opened, pair)
	if err != nil {
		return nil, err
	}

	if pair != "" {
		views := make([]OrderView, 0, len(orders))
		for _, o := range orders {
			views = append(views, formatOrder(o))
		}
		return views, nil
	}

	grouped := make(map[string][]OrderView)
	for _, o := range orders {
		grouped[o.Market] = append(grouped[o.Market], formatOrder(o))
	}
	return grouped, nil
}

// ReturnTradeHistory lists fills for one pair, or grouped by pair for "all"
func (s *Stub) ReturnTradeHistory(ctx context.Context, apiKey, currencyPair, start, end, limit string) (any, error) {
	pair, err := s.parseCurrencyPair(ctx, currencyPair)
	if err != nil {
		return nil, err
	}
	startAt, err := parseTimestamp(start, errInvalidStart)
	if err != nil {
		return nil, err
	}
	endAt, err := parseTimestamp(end, errInvalidEnd)
	if err != nil {
		return nil, err
	}

	trades, err := s.exec.GetTrades(ctx, apiKey, exchange.TradeFilter{
		Market:  pair,
		Limit:   parseLimit(limit),
		StartAt: startAt,
		EndAt:   endAt,
	})
	if err != nil {
		return nil, err
	}

	if pair != "" {
		views := make([]TradeView, 0, len(trades))
		for _, t := range trades {
			views = append(views, formatTrade(t))
		}
		return views, nil
	}

	grouped := make(map[string][]TradeView)
	for _, t := range trades {
		grouped[t.Market] = append(grouped[t.Market], formatTrade(t))
	}
	return grouped, nil
}

// ReturnOrderTrades lists the fills of one order. Unknown orders read as an
// empty list.
func (s *Stub) ReturnOrderTrades(ctx context.Context, apiKey, orderNumber string) ([]TradeView, error) {
	trades, err := s.exec.GetTrades(ctx, apiKey, exchange.TradeFilter{
		OrderNumber: orderNumber,
	})
	if err != nil {
		return nil, err
	}

	views := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, formatTrade(t))
	}
	return views, nil
}

// ReturnOrderStatus reports an open order keyed by its number; anything
// else is a bare failure
func (s *Stub) ReturnOrderStatus(ctx context.Context, apiKey, orderNumber string) (OrderStatusResult, error) {
	o, err := s.getOrder(ctx, apiKey, orderNumber)
	if err != nil {
		return OrderStatusResult{}, err
	}
	if o.Status != exchange.Opened {
		return OrderStatusResult{Success: 0}, nil
	}
	return OrderStatusResult{
		Result:  map[string]OrderStatusView{orderNumber: formatOrderStatus(*o)},
		Success: 1,
	}, nil
}

// SendOrder validates and places a limit order, returning its fresh number.
// The balance check runs against the order amount in the funding currency.
func (s *Stub) SendOrder(ctx context.Context, apiKey string, direction exchange.OrderDirection,
	currencyPair, rate, amount, fillOrKill, immediateOrCancel, postOnly string) (OrderResult, error) {
	number := s.numbers()
	price, err := parseDecimal(rate, errInvalidRate)
	if err != nil {
		return OrderResult{}, err
	}
	quantity, err := parseDecimal(amount, errInvalidAmount)
	if err != nil {
		return OrderResult{}, err
	}
	pair, err := s.parseCurrencyPair(ctx, currencyPair)
	if err != nil {
		return OrderResult{}, err
	}

	if price.Mul(quantity).LessThan(minTradeTotal) {
		return OrderResult{}, apiError(errTotalTooSmall)
	}

	base, market := splitCurrencyPair(pair)
	funding := base
	feeCurrency := market
	if direction == exchange.Sell {
		funding = market
		feeCurrency = base
	}
	if err := s.checkBalance(ctx, apiKey, quantity, funding); err != nil {
		return OrderResult{}, err
	}

	_, err = s.exec.SendOrder(ctx, exchange.Order{
		ID:             strconv.FormatInt(number, 10),
		APIKey:         apiKey,
		ExchangeID:     ExchangeID,
		Market:         pair,
		Direction:      direction,
		Type:           exchange.OrderTypeFromFlags(fillOrKill, immediateOrCancel, postOnly),
		Price:          price,
		Amount:         quantity,
		BaseCurrency:   base,
		MarketCurrency: market,
		FeeCurrency:    feeCurrency,
	})
	if err != nil {
		return OrderResult{}, err
	}
	return OrderResult{OrderNumber: number, ResultingTrades: nil}, nil
}

// CancelOrder closes an open order and reports the amount released
func (s *Stub) CancelOrder(ctx context.Context, apiKey, orderNumber string) (CancelResult, error) {
	o, err := s.getOrder(ctx, apiKey, orderNumber)
	if err != nil {
		return CancelResult{}, err
	}
	if o.Status != exchange.Opened {
		return CancelResult{}, apiError(errOrderNotFound)
	}

	canceled, err := s.exec.CancelOrder(ctx, apiKey, orderNumber)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		return CancelResult{}, apiError(errOrderNotFound)
	}
	if err != nil {
		return CancelResult{}, err
	}

	return CancelResult{
		Amount:  canceled.RemainingAmount,
		Message: fmt.Sprintf("Order #%s canceled.", orderNumber),
		Success: 1,
	}, nil
}

// MoveOrder is documented by the venue but not simulated
func (s *Stub) MoveOrder(_ context.Context, _, _, _, _, _, _ string) error {
	return ErrNotImplemented
}

// Withdraw submits a withdrawal, reserving the funds until the sweep
// confirms it. No withdrawal fee is charged.
func (s *Stub) Withdraw(ctx context.Context, apiKey, code, amount, address, paymentID string) (WithdrawResult, error) {
	code, err := s.parseCurrency(ctx, code)
	if err != nil {
		return WithdrawResult{}, err
	}
	quantity, err := parseDecimal(amount, errInvalidAmount)
	if err != nil {
		return WithdrawResult{}, err
	}
	if err := s.checkBalance(ctx, apiKey, quantity, code); err != nil {
		return WithdrawResult{}, err
	}
	if address == "" {
		return WithdrawResult{}, apiError(errRequiredParamMissing)
	}
	if !currency.IsAddressValid(address, code) {
		return WithdrawResult{}, apiError(errInvalidAddress)
	}

	_, err = s.exec.SendTransaction(ctx, exchange.Transaction{
		ID:         strconv.FormatInt(s.numbers(), 10),
		APIKey:     apiKey,
		ExchangeID: ExchangeID,
		Type:       exchange.Withdrawal,
		Currency:   code,
		Amount:     quantity,
		Address:    address,
		PaymentID:  paymentID,
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	return WithdrawResult{
		Response: fmt.Sprintf("Withdrew %s %s.", quantity.String(), code),
	}, nil
}

// ReturnFeeInfo reports the flat fee schedule
func (s *Stub) ReturnFeeInfo() FeeInfo {
	return FeeInfo{MakerFee: makerFeePct, TakerFee: takerFeePct}
}

// ReturnAvailableAccountBalances lists available balances, wrapped in the
// exchange account unless one was asked for by name
func (s *Stub) ReturnAvailableAccountBalances(ctx context.Context, apiKey, account string) (any, error) {
	if account != "" {
		if account != accountExchange {
			return nil, ErrNotImplemented
		}
		return s.ReturnBalances(ctx, apiKey)
	}

	balances, err := s.ReturnBalances(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{accountExchange: balances}, nil
}
