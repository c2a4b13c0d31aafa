package currency

import (
	"fmt"
	"strings"
)

// Pair holds one instrument's currency codes. Base is the funding currency
// an order's total is priced in; Market is the currency being traded.
type Pair struct {
	Delimiter string
	Base      string
	Market    string
}

// NewPairDelimiter splits a currency pair string at delimiter, e.g.
// "BTC-XRP" or "BTC_XRP" into base BTC and market XRP.
func NewPairDelimiter(currencyPair, delimiter string) (Pair, error) {
	result := strings.SplitN(currencyPair, delimiter, 2)
	if len(result) != 2 || result[0] == "" || result[1] == "" {
		return Pair{}, fmt.Errorf("%q is not a %q delimited currency pair", currencyPair, delimiter)
	}
	return Pair{
		Delimiter: delimiter,
		Base:      result[0],
		Market:    result[1],
	}, nil
}

// NewPair returns a currency pair from its two codes
func NewPair(base, market, delimiter string) Pair {
	return Pair{
		Delimiter: delimiter,
		Base:      base,
		Market:    market,
	}
}

// String returns the currency pair string
func (p Pair) String() string {
	return p.Base + p.Delimiter + p.Market
}

// IsEmpty returns whether the pair is missing a currency code
func (p Pair) IsEmpty() bool {
	return p.Base == "" || p.Market == ""
}

// Equal compares two currency pairs regardless of delimiter or case
func (p Pair) Equal(other Pair) bool {
	return strings.EqualFold(p.Base, other.Base) &&
		strings.EqualFold(p.Market, other.Market)
}
