package bittrex

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/testex/common/crypto"
	"github.com/thrasher-corp/testex/currency"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"go.uber.org/zap"
)

// ExchangeID scopes this dialect's orders in the shared store
const ExchangeID = "bittrex"

// ReferenceData supplies the upstream market and currency tables used for
// request validation. *Proxy satisfies it.
type ReferenceData interface {
	Markets(ctx context.Context) (map[string]Market, error)
	Currencies(ctx context.Context) (map[string]Currency, error)
}

// Stub emulates the Bittrex v1.1 trading and account API on top of the
// executor. It is stateless per request: the authenticated api key is
// threaded through every call rather than stored.
type Stub struct {
	exec exchange.Executor
	ref  ReferenceData
	log  *zap.Logger
}

// NewStub returns a Bittrex dialect stub registered with the executor
func NewStub(exec exchange.Executor, ref ReferenceData, log *zap.Logger) *Stub {
	s := &Stub{exec: exec, ref: ref, log: log}
	exec.RegisterAdapter(s)
	return s
}

// ExchangeID implements exchange.Adapter
func (s *Stub) ExchangeID() string { return ExchangeID }

// ExtendOrder populates the derived fields per the Bittrex fee model: the
// trade fee is 0.25% of the trade total; buys reserve amount x price in the
// base currency plus the fee on top, sells reserve the amount itself and no
// fee. The fee currency is the base currency either way.
func (s *Stub) ExtendOrder(o exchange.Order) exchange.ExtendedOrder {
	ext := exchange.ExtendedOrder{Order: o}
	ext.Total = o.ExecutedAmount.Mul(o.AveragePrice).RoundBank(decimalScale)
	ext.Fee = ext.Total.Mul(tradeFeePct).RoundBank(decimalScale)
	ext.RemainingAmount = o.Amount.Sub(o.ExecutedAmount)

	if o.Direction == exchange.Buy {
		ext.Reserved = o.Amount.Mul(o.Price).RoundBank(decimalScale)
		ext.ReservedFee = ext.Reserved.Mul(tradeFeePct).RoundBank(decimalScale)
	} else {
		ext.Reserved = o.Amount
	}
	return ext
}

// Authenticate validates the signed request and returns the api key it
// belongs to. The signature is the HMAC-SHA512 hex of the full request URL
// including the query string, keyed with the user's secret, which in this
// simulation is the api key itself.
func (s *Stub) Authenticate(fullURL, nonce, apiKey, apiSign string) (string, error) {
	if nonce == "" {
		return "", apiError(errNonceNotProvided)
	}
	if apiKey == "" {
		return "", apiError(errAPIKeyNotProvided)
	}
	if apiSign == "" {
		return "", apiError(errAPISignNotProvided)
	}
	if crypto.SignMessage(fullURL, apiKey) != apiSign {
		return "", apiError(errInvalidSignature)
	}
	return apiKey, nil
}

func (s *Stub) parseMarket(ctx context.Context, market string, optional bool) (Market, error) {
	if market == "" {
		if optional {
			return Market{}, nil
		}
		return Market{}, apiError(errMarketNotProvided)
	}
	markets, err := s.ref.Markets(ctx)
	if err != nil {
		return Market{}, err
	}
	m, ok := markets[market]
	if !ok {
		return Market{}, apiError(errInvalidMarket)
	}
	return m, nil
}

func (s *Stub) parseCurrency(ctx context.Context, code string, optional bool) (Currency, error) {
	if code == "" {
		if optional {
			return Currency{}, nil
		}
		return Currency{}, apiError(errCurrencyNotProvided)
	}
	currencies, err := s.ref.Currencies(ctx)
	if err != nil {
		return Currency{}, err
	}
	c, ok := currencies[code]
	if !ok {
		return Currency{}, apiError(errInvalidCurrency)
	}
	return c, nil
}

func parseQuantity(quantity string) (decimal.Decimal, error) {
	if quantity == "" {
		return decimal.Decimal{}, apiError(errQuantityNotProvided)
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return decimal.Decimal{}, apiError(errQuantityInvalid)
	}
	return q, nil
}

func parseRate(rate string) (decimal.Decimal, error) {
	if rate == "" {
		return decimal.Decimal{}, apiError(errRateNotProvided)
	}
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return decimal.Decimal{}, apiError(errRateInvalid)
	}
	return r, nil
}

func parseUUID(id string) (string, error) {
	if id == "" {
		return "", apiError(errUUIDNotProvided)
	}
	if _, err := uuid.FromString(id); err != nil {
		return "", apiError(errUUIDInvalid)
	}
	return id, nil
}

func parseAddress(address, code string) (string, error) {
	if address == "" {
		return "", apiError(errAddressNotProvided)
	}
	if !currency.IsAddressValid(address, code) {
		return "", apiError(errAddressInvalid)
	}
	return address, nil
}

// checkBalance refuses the operation when the api key's available balance
// in the funding currency cannot cover the amount. The check reads outside
// any lock, exactly like the venue being emulated; racing requests can
// still drive a balance negative.
func (s *Stub) checkBalance(ctx context.Context, apiKey string, amount decimal.Decimal, code string) error {
	b, err := s.exec.GetBalance(ctx, apiKey, code)
	if err != nil {
		return err
	}
	if amount.GreaterThan(b.Available) {
		return apiError(errInsufficientFunds)
	}
	return nil
}

// SendOrder validates and places a buylimit/selllimit order, returning the
// new order's uuid
func (s *Stub) SendOrder(ctx context.Context, apiKey string, direction exchange.OrderDirection, market, quantity, rate string) (UUIDResult, error) {
	m, err := s.parseMarket(ctx, market, false)
	if err != nil {
		return UUIDResult{}, err
	}
	q, err := parseQuantity(quantity)
	if err != nil {
		return UUIDResult{}, err
	}
	r, err := parseRate(rate)
	if err != nil {
		return UUIDResult{}, err
	}

	funding := m.BaseCurrency
	if direction == exchange.Sell {
		funding = m.MarketCurrency
	}
	if err := s.checkBalance(ctx, apiKey, q, funding); err != nil {
		return UUIDResult{}, err
	}

	if q.LessThan(m.MinTradeSize) {
		return UUIDResult{}, apiError(errMinTradeNotMet)
	}
	if q.Mul(r).LessThan(minTradeTotal) {
		return UUIDResult{}, apiError(errDustTrade)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return UUIDResult{}, err
	}
	_, err = s.exec.SendOrder(ctx, exchange.Order{
		ID:             id.String(),
		APIKey:         apiKey,
		ExchangeID:     ExchangeID,
		Market:         m.MarketName,
		Direction:      direction,
		Price:          r,
		Amount:         q,
		BaseCurrency:   m.BaseCurrency,
		MarketCurrency: m.MarketCurrency,
		FeeCurrency:    m.BaseCurrency,
	})
	if err != nil {
		return UUIDResult{}, err
	}
	return UUIDResult{UUID: id.String()}, nil
}

// Cancel closes an open order. Cancelling a closed order is refused with
// ORDER_NOT_OPEN before the store is touched.
func (s *Stub) Cancel(ctx context.Context, apiKey, id string) error {
	id, err := parseUUID(id)
	if err != nil {
		return err
	}

	o, err := s.exec.GetOrder(ctx, apiKey, id)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		return apiError(errInvalidOrder)
	}
	if err != nil {
		return err
	}
	if o.Status != exchange.Opened {
		return apiError(errOrderNotOpen)
	}

	if _, err := s.exec.CancelOrder(ctx, apiKey, id); err != nil &&
		!errors.Is(err, exchange.ErrOrderNotFound) {
		return err
	}
	return nil
}

// GetOpenOrders lists the api key's open orders, optionally filtered by
// market
func (s *Stub) GetOpenOrders(ctx context.Context, apiKey, market string) ([]OpenOrder, error) {
	m, err := s.parseMarket(ctx, market, true)
	if err != nil {
		return nil, err
	}

	orders, err := s.exec.GetOrders(ctx, apiKey, exchange.Opened, m.MarketName)
	if err != nil {
		return nil, err
	}

	out := make([]OpenOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, formatOpenOrder(o))
	}
	return out, nil
}

// GetOrderHistory lists the api key's closed orders, optionally filtered by
// market
func (s *Stub) GetOrderHistory(ctx context.Context, apiKey, market string) ([]HistoryOrder, error) {
	m, err := s.parseMarket(ctx, market, true)
	if err != nil {
		return nil, err
	}

	orders, err := s.exec.GetOrders(ctx, apiKey, exchange.Closed, m.MarketName)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, formatHistoryOrder(o))
	}
	return out, nil
}

// GetOrder fetches one order in its single-order view
func (s *Stub) GetOrder(ctx context.Context, apiKey, id string) (SingleOrder, error) {
	id, err := parseUUID(id)
	if err != nil {
		return SingleOrder{}, err
	}

	o, err := s.exec.GetOrder(ctx, apiKey, id)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		return SingleOrder{}, apiError(errInvalidOrder)
	}
	if err != nil {
		return SingleOrder{}, err
	}
	return formatSingleOrder(*o), nil
}

// GetBalances lists every balance row for the api key
func (s *Stub) GetBalances(ctx context.Context, apiKey string) ([]BalanceView, error) {
	balances, err := s.exec.GetBalances(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	out := make([]BalanceView, 0, len(balances))
	for _, b := range balances {
		out = append(out, formatBalance(b))
	}
	return out, nil
}

// GetBalance fetches one balance cell, zeroed when the currency was never
// touched
func (s *Stub) GetBalance(ctx context.Context, apiKey, code string) (BalanceView, error) {
	c, err := s.parseCurrency(ctx, code, false)
	if err != nil {
		return BalanceView{}, err
	}
	b, err := s.exec.GetBalance(ctx, apiKey, c.Currency)
	if err != nil {
		return BalanceView{}, err
	}
	return formatBalance(b), nil
}

// GetDepositAddress always reports the address as still generating;
// testnet wallets are not simulated
func (s *Stub) GetDepositAddress(ctx context.Context, code string) error {
	if _, err := s.parseCurrency(ctx, code, false); err != nil {
		return err
	}
	return apiError(errAddressGenerating)
}

// Withdraw submits a withdrawal, reserving the funds until the sweep
// confirms it. The withdrawal fee comes from the upstream currency table.
func (s *Stub) Withdraw(ctx context.Context, apiKey, code, quantity, address, paymentID string) (UUIDResult, error) {
	c, err := s.parseCurrency(ctx, code, false)
	if err != nil {
		return UUIDResult{}, err
	}
	q, err := parseQuantity(quantity)
	if err != nil {
		return UUIDResult{}, err
	}
	addr, err := parseAddress(address, c.Currency)
	if err != nil {
		return UUIDResult{}, err
	}
	if err := s.checkBalance(ctx, apiKey, q, c.Currency); err != nil {
		return UUIDResult{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return UUIDResult{}, err
	}
	_, err = s.exec.SendTransaction(ctx, exchange.Transaction{
		ID:         id.String(),
		APIKey:     apiKey,
		ExchangeID: ExchangeID,
		Type:       exchange.Withdrawal,
		Currency:   c.Currency,
		Amount:     q,
		Address:    addr,
		Fee:        c.TxFee,
		PaymentID:  paymentID,
	})
	if err != nil {
		return UUIDResult{}, err
	}
	return UUIDResult{UUID: id.String()}, nil
}

// GetWithdrawalHistory lists the api key's withdrawals, optionally filtered
// by currency
func (s *Stub) GetWithdrawalHistory(ctx context.Context, apiKey, code string) ([]WithdrawalView, error) {
	c, err := s.parseCurrency(ctx, code, true)
	if err != nil {
		return nil, err
	}

	txs, err := s.exec.GetTransactions(ctx, apiKey, exchange.TransactionFilter{
		Type:     exchange.Withdrawal,
		Currency: c.Currency,
	})
	if err != nil {
		return nil, err
	}

	out := make([]WithdrawalView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, formatWithdrawal(tx))
	}
	return out, nil
}

// GetDepositHistory lists the api key's deposits, optionally filtered by
// currency
func (s *Stub) GetDepositHistory(ctx context.Context, apiKey, code string) ([]DepositView, error) {
	c, err := s.parseCurrency(ctx, code, true)
	if err != nil {
		return nil, err
	}

	txs, err := s.exec.GetTransactions(ctx, apiKey, exchange.TransactionFilter{
		Type:     exchange.Deposit,
		Currency: c.Currency,
	})
	if err != nil {
		return nil, err
	}

	out := make([]DepositView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, formatDeposit(tx))
	}
	return out, nil
}
