package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"github.com/thrasher-corp/testex/exchanges/bittrex"
	"github.com/thrasher-corp/testex/exchanges/poloniex"
	"github.com/thrasher-corp/testex/exchanges/request"
	"go.uber.org/zap"
)

// Server wires the two venue dialects, their upstream proxies and the
// executor into one HTTP surface. Bots point their bittrex.com and
// poloniex.com base URLs at it and keep their existing code paths.
type Server struct {
	exec          exchange.Executor
	bittrexStub   *bittrex.Stub
	bittrexProxy  *bittrex.Proxy
	poloniexStub  *poloniex.Stub
	poloniexProxy *poloniex.Proxy
	log           *zap.Logger
	readme        []byte
}

// Route names one handler the way the router registers it
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// NewServer returns a server over the given dialect stubs and proxies
func NewServer(exec exchange.Executor, bs *bittrex.Stub, bp *bittrex.Proxy,
	ps *poloniex.Stub, pp *poloniex.Proxy, readme []byte, log *zap.Logger) *Server {
	return &Server{
		exec:          exec,
		bittrexStub:   bs,
		bittrexProxy:  bp,
		poloniexStub:  ps,
		poloniexProxy: pp,
		log:           log,
		readme:        readme,
	}
}

// requestLogger logs every request with its handler name and latency
func (s *Server) requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)

		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.String("handler", name),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// NewRouter returns the multiplexor with every venue route registered
func (s *Server) NewRouter() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	routes := []Route{
		{"Documentation", "GET", "/", s.documentation},
		{"DepositForm", "GET", "/deposit", s.depositForm},
		{"DepositSubmit", "POST", "/deposit", s.depositSubmit},

		{"BittrexGetMarkets", "GET", "/bittrex.com/api/v1.1/public/getmarkets", s.bittrexGetMarkets},
		{"BittrexGetCurrencies", "GET", "/bittrex.com/api/v1.1/public/getcurrencies", s.bittrexGetCurrencies},
		{"BittrexGetTicker", "GET", "/bittrex.com/api/v1.1/public/getticker", s.bittrexGetTicker},
		{"BittrexGetMarketSummaries", "GET", "/bittrex.com/api/v1.1/public/getmarketsummaries", s.bittrexGetMarketSummaries},
		{"BittrexGetMarketSummary", "GET", "/bittrex.com/api/v1.1/public/getmarketsummary", s.bittrexGetMarketSummary},
		{"BittrexGetOrderBook", "GET", "/bittrex.com/api/v1.1/public/getorderbook", s.bittrexGetOrderBook},
		{"BittrexGetMarketHistory", "GET", "/bittrex.com/api/v1.1/public/getmarkethistory", s.bittrexGetMarketHistory},

		{"BittrexBuyLimit", "GET", "/bittrex.com/api/v1.1/market/buylimit", s.bittrexAPI(s.bittrexBuyLimit)},
		{"BittrexSellLimit", "GET", "/bittrex.com/api/v1.1/market/selllimit", s.bittrexAPI(s.bittrexSellLimit)},
		{"BittrexCancel", "GET", "/bittrex.com/api/v1.1/market/cancel", s.bittrexAPI(s.bittrexCancel)},
		{"BittrexGetOpenOrders", "GET", "/bittrex.com/api/v1.1/market/getopenorders", s.bittrexAPI(s.bittrexGetOpenOrders)},

		{"BittrexGetBalances", "GET", "/bittrex.com/api/v1.1/account/getbalances", s.bittrexAPI(s.bittrexGetBalances)},
		{"BittrexGetBalance", "GET", "/bittrex.com/api/v1.1/account/getbalance", s.bittrexAPI(s.bittrexGetBalance)},
		{"BittrexGetDepositAddress", "GET", "/bittrex.com/api/v1.1/account/getdepositaddress", s.bittrexAPI(s.bittrexGetDepositAddress)},
		{"BittrexWithdraw", "GET", "/bittrex.com/api/v1.1/account/withdraw", s.bittrexAPI(s.bittrexWithdraw)},
		{"BittrexGetOrder", "GET", "/bittrex.com/api/v1.1/account/getorder", s.bittrexAPI(s.bittrexGetOrder)},
		{"BittrexGetOrderHistory", "GET", "/bittrex.com/api/v1.1/account/getorderhistory", s.bittrexAPI(s.bittrexGetOrderHistory)},
		{"BittrexGetWithdrawalHistory", "GET", "/bittrex.com/api/v1.1/account/getwithdrawalhistory", s.bittrexAPI(s.bittrexGetWithdrawalHistory)},
		{"BittrexGetDepositHistory", "GET", "/bittrex.com/api/v1.1/account/getdeposithistory", s.bittrexAPI(s.bittrexGetDepositHistory)},

		{"PoloniexPublic", "GET", "/poloniex.com/public", s.poloniexPublic},
		{"PoloniexTradingAPI", "POST", "/poloniex.com/tradingApi", s.poloniexTradingAPI},
	}

	for _, route := range routes {
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(s.requestLogger(route.HandlerFunc, route.Name))
	}

	// Anything unrecognized points back at the documentation
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/")
		w.WriteHeader(http.StatusNotFound)
	})

	return router
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("internal error",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// logAPIError mirrors every business refusal to the server log; the client
// still sees a 200 with the venue's error shape
func (s *Server) logAPIError(r *http.Request, message string, params string) {
	s.log.Error("api error",
		zap.String("path", r.URL.Path),
		zap.String("message", message),
		zap.String("params", params))
}

// relay forwards a cached upstream reply as-is
func (s *Server) relay(w http.ResponseWriter, r *http.Request, resp *request.Response, err error) {
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		s.log.Error("response write failed", zap.Error(err))
	}
}
