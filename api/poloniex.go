package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/exchanges/poloniex"
	"github.com/thrasher-corp/testex/exchanges/request"
)

// Trading request bodies beyond this are refused outright
const maxTradingBodySize = 1 << 20

// poloniexPublic dispatches command-style public requests to the upstream
// proxy. An unknown command is a business error, not a 404.
func (s *Server) poloniexPublic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var resp *request.Response
	var err error
	switch q.Get("command") {
	case "returnTicker":
		resp, err = s.poloniexProxy.ReturnTicker(ctx)
	case "return24hVolume":
		resp, err = s.poloniexProxy.Return24hVolume(ctx)
	case "returnOrderBook":
		resp, err = s.poloniexProxy.ReturnOrderBook(ctx,
			q.Get("currencyPair"), q.Get("depth"))
	case "returnTradeHistory":
		resp, err = s.poloniexProxy.ReturnTradeHistory(ctx,
			q.Get("currencyPair"), q.Get("start"), q.Get("end"))
	case "returnChartData":
		resp, err = s.poloniexProxy.ReturnChartData(ctx,
			q.Get("currencyPair"), q.Get("start"), q.Get("end"), q.Get("period"))
	case "returnCurrencies":
		resp, err = s.poloniexProxy.ReturnCurrencies(ctx)
	case "returnLoanOrders":
		resp, err = s.poloniexProxy.ReturnLoanOrders(ctx, q.Get("currency"))
	default:
		s.writeJSON(w, http.StatusOK, poloniex.ErrorView{Error: "Invalid command."})
		return
	}
	s.relay(w, r, resp, err)
}

// poloniexTradingAPI handles the single POST endpoint every trading command
// goes through. The raw body is what the client signed, so it is read
// before any form parsing, capped at one megabyte.
func (s *Server) poloniexTradingAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.ContentLength > maxTradingBodySize {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge),
			http.StatusRequestEntityTooLarge)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTradingBodySize+1))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if len(body) > maxTradingBodySize {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge),
			http.StatusRequestEntityTooLarge)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		form = url.Values{}
	}

	if err := s.exec.Process(ctx); err != nil {
		s.internalError(w, r, err)
		return
	}

	apiKey, err := s.poloniexStub.Authenticate(string(body),
		r.Header.Get("Key"), r.Header.Get("Sign"), form.Get("nonce"))

	var result any
	if err == nil {
		result, err = s.poloniexCommand(r, apiKey, form)
	}
	if err == nil {
		err = s.exec.Process(ctx)
	}

	if err != nil {
		var apiErr *poloniex.APIError
		switch {
		case errors.As(err, &apiErr):
			s.logAPIError(r, apiErr.Message, form.Encode())
			s.writeJSON(w, http.StatusOK, apiErr.View())
		case errors.Is(err, poloniex.ErrNotImplemented):
			http.Error(w, http.StatusText(http.StatusNotImplemented),
				http.StatusNotImplemented)
		default:
			s.internalError(w, r, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) poloniexCommand(r *http.Request, apiKey string, form url.Values) (any, error) {
	ctx := r.Context()

	switch form.Get("command") {
	case "returnBalances":
		return s.poloniexStub.ReturnBalances(ctx, apiKey)
	case "returnCompleteBalances":
		return s.poloniexStub.ReturnCompleteBalances(ctx, apiKey, form.Get("account"))
	case "returnDepositAddresses":
		return s.poloniexStub.ReturnDepositAddresses(), nil
	case "generateNewAddress":
		return s.poloniexStub.GenerateNewAddress(ctx, form.Get("currency"))
	case "returnDepositsWithdrawals":
		return s.poloniexStub.ReturnDepositsWithdrawals(ctx, apiKey,
			form.Get("start"), form.Get("end"))
	case "returnOpenOrders":
		return s.poloniexStub.ReturnOpenOrders(ctx, apiKey, form.Get("currencyPair"))
	case "returnTradeHistory":
		return s.poloniexStub.ReturnTradeHistory(ctx, apiKey,
			form.Get("currencyPair"), form.Get("start"), form.Get("end"), form.Get("limit"))
	case "returnOrderTrades":
		return s.poloniexStub.ReturnOrderTrades(ctx, apiKey, form.Get("orderNumber"))
	case "returnOrderStatus":
		return s.poloniexStub.ReturnOrderStatus(ctx, apiKey, form.Get("orderNumber"))
	case "buy":
		return s.poloniexStub.SendOrder(ctx, apiKey, exchange.Buy,
			form.Get("currencyPair"), form.Get("rate"), form.Get("amount"),
			form.Get("fillOrKill"), form.Get("immediateOrCancel"), form.Get("postOnly"))
	case "sell":
		return s.poloniexStub.SendOrder(ctx, apiKey, exchange.Sell,
			form.Get("currencyPair"), form.Get("rate"), form.Get("amount"),
			form.Get("fillOrKill"), form.Get("immediateOrCancel"), form.Get("postOnly"))
	case "cancelOrder":
		return s.poloniexStub.CancelOrder(ctx, apiKey, form.Get("orderNumber"))
	case "moveOrder":
		return nil, s.poloniexStub.MoveOrder(ctx, apiKey, form.Get("orderNumber"),
			form.Get("rate"), form.Get("amount"),
			form.Get("immediateOrCancel"), form.Get("postOnly"))
	case "withdraw":
		return s.poloniexStub.Withdraw(ctx, apiKey, form.Get("currency"),
			form.Get("amount"), form.Get("address"), form.Get("paymentId"))
	case "returnFeeInfo":
		return s.poloniexStub.ReturnFeeInfo(), nil
	case "returnAvailableAccountBalances":
		return s.poloniexStub.ReturnAvailableAccountBalances(ctx, apiKey, form.Get("account"))
	default:
		return nil, &poloniex.APIError{Message: "Invalid command."}
	}
}
