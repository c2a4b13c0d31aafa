package api

import (
	"html/template"
	"net/http"

	"github.com/russross/blackfriday/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var documentationTemplate = template.Must(template.New("documentation").Parse(`<!DOCTYPE html>
<html>
<head><title>testex</title></head>
<body>
{{.Readme}}
</body>
</html>
`))

var depositTemplate = template.Must(template.New("deposit").Parse(`<!DOCTYPE html>
<html>
<head><title>testex deposit</title></head>
<body>
{{if .Message}}<p>{{.Message}}</p>{{end}}
<form method="POST" action="/deposit">
  <label>API Key <input type="text" name="api_key" value="{{.APIKey}}"></label>
  <label>Amount <input type="text" name="amount" value="{{.Amount}}"></label>
  <label>Currency <input type="text" name="currency" value="{{.Currency}}"></label>
  <input type="submit" value="Deposit">
</form>
</body>
</html>
`))

type depositPage struct {
	APIKey   string
	Amount   string
	Currency string
	Message  string
}

// Faucet form defaults; integration suites lean on them
func defaultDepositPage() depositPage {
	return depositPage{APIKey: "qwerty", Amount: "1", Currency: "BTC"}
}

// documentation renders the README at the root, the way a first-time
// visitor finds out what this server is
func (s *Server) documentation(w http.ResponseWriter, _ *http.Request) {
	rendered := blackfriday.Run(s.readme)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := documentationTemplate.Execute(w, struct{ Readme template.HTML }{
		Readme: template.HTML(rendered), //nolint:gosec // our own README
	})
	if err != nil {
		s.log.Error("documentation render failed", zap.Error(err))
	}
}

func (s *Server) renderDeposit(w http.ResponseWriter, page depositPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := depositTemplate.Execute(w, page); err != nil {
		s.log.Error("deposit render failed", zap.Error(err))
	}
}

// depositForm shows the faucet
func (s *Server) depositForm(w http.ResponseWriter, _ *http.Request) {
	s.renderDeposit(w, defaultDepositPage())
}

// depositSubmit credits the requested balance directly, confirmed on the
// spot, and redisplays the form with a receipt line
func (s *Server) depositSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	page := defaultDepositPage()
	if v := r.PostForm.Get("api_key"); v != "" {
		page.APIKey = v
	}
	if v := r.PostForm.Get("amount"); v != "" {
		page.Amount = v
	}
	if v := r.PostForm.Get("currency"); v != "" {
		page.Currency = v
	}

	quantity, err := decimal.NewFromString(page.Amount)
	if err != nil {
		page.Message = "Invalid amount."
		s.renderDeposit(w, page)
		return
	}

	if _, err := s.exec.Deposit(r.Context(), page.APIKey, page.Currency, quantity); err != nil {
		s.internalError(w, r, err)
		return
	}

	page.Message = page.Amount + " " + page.Currency + " deposited on " + page.APIKey
	s.renderDeposit(w, page)
}
