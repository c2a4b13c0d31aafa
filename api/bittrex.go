package api

import (
	"errors"
	"net/http"
	"net/url"

	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/exchanges/bittrex"
)

// fullRequestURL reconstructs the URL the client signed, query string
// included
func fullRequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}

type bittrexHandler func(r *http.Request, apiKey string, q url.Values) (any, error)

// bittrexAPI wraps an authenticated Bittrex handler: a book sweep runs
// before authentication and again after a successful call, and any business
// error renders as the success=false envelope with HTTP 200
func (s *Server) bittrexAPI(h bittrexHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := s.exec.Process(ctx); err != nil {
			s.internalError(w, r, err)
			return
		}

		q := r.URL.Query()
		apiKey, err := s.bittrexStub.Authenticate(
			fullRequestURL(r), q.Get("nonce"), q.Get("apikey"), r.Header.Get("apisign"))

		var result any
		if err == nil {
			result, err = h(r, apiKey, q)
		}
		if err == nil {
			err = s.exec.Process(ctx)
		}

		if err != nil {
			var apiErr *bittrex.APIError
			if errors.As(err, &apiErr) {
				s.logAPIError(r, apiErr.Message, q.Encode())
				s.writeJSON(w, http.StatusOK, apiErr.Envelope())
				return
			}
			s.internalError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, bittrex.Response(result))
	}
}

func (s *Server) bittrexBuyLimit(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.SendOrder(r.Context(), apiKey, exchange.Buy,
		q.Get("market"), q.Get("quantity"), q.Get("rate"))
}

func (s *Server) bittrexSellLimit(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.SendOrder(r.Context(), apiKey, exchange.Sell,
		q.Get("market"), q.Get("quantity"), q.Get("rate"))
}

// Cancel reports a null result on success
func (s *Server) bittrexCancel(r *http.Request, apiKey string, q url.Values) (any, error) {
	if err := s.bittrexStub.Cancel(r.Context(), apiKey, q.Get("uuid")); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) bittrexGetOpenOrders(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.GetOpenOrders(r.Context(), apiKey, q.Get("market"))
}

func (s *Server) bittrexGetBalances(r *http.Request, apiKey string, _ url.Values) (any, error) {
	return s.bittrexStub.GetBalances(r.Context(), apiKey)
}

func (s *Server) bittrexGetBalance(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.GetBalance(r.Context(), apiKey, q.Get("currency"))
}

func (s *Server) bittrexGetDepositAddress(r *http.Request, _ string, q url.Values) (any, error) {
	if err := s.bittrexStub.GetDepositAddress(r.Context(), q.Get("currency")); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) bittrexWithdraw(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.Withdraw(r.Context(), apiKey,
		q.Get("currency"), q.Get("quantity"), q.Get("address"), q.Get("paymentid"))
}

func (s *Server) bittrexGetOrder(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.GetOrder(r.Context(), apiKey, q.Get("uuid"))
}

func (s *Server) bittrexGetOrderHistory(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.GetOrderHistory(r.Context(), apiKey, q.Get("market"))
}

func (s *Server) bittrexGetWithdrawalHistory(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.GetWithdrawalHistory(r.Context(), apiKey, q.Get("currency"))
}

func (s *Server) bittrexGetDepositHistory(r *http.Request, apiKey string, q url.Values) (any, error) {
	return s.bittrexStub.GetDepositHistory(r.Context(), apiKey, q.Get("currency"))
}

func (s *Server) bittrexGetMarkets(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bittrexProxy.GetMarkets(r.Context())
	s.relay(w, r, resp, err)
}

func (s *Server) bittrexGetCurrencies(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bittrexProxy.GetCurrencies(r.Context())
	s.relay(w, r, resp, err)
}

func (s *Server) bittrexGetTicker(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bittrexProxy.GetTicker(r.Context(), r.URL.Query().Get("market"))
	s.relay(w, r, resp, err)
}

func (s *Server) bittrexGetMarketSummaries(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bittrexProxy.GetMarketSummaries(r.Context())
	s.relay(w, r, resp, err)
}

func (s *Server) bittrexGetMarketSummary(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bittrexProxy.GetMarketSummary(r.Context(), r.URL.Query().Get("market"))
	s.relay(w, r, resp, err)
}

func (s *Server) bittrexGetOrderBook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.bittrexProxy.GetOrderBook(r.Context(), q.Get("market"), q.Get("type"))
	s.relay(w, r, resp, err)
}

func (s *Server) bittrexGetMarketHistory(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bittrexProxy.GetMarketHistory(r.Context(), r.URL.Query().Get("market"))
	s.relay(w, r, resp, err)
}
