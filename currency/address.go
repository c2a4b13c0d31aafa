package currency

import (
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var errInvalidBase58 = errors.New("invalid base58 string")

// addressPrefixes maps a currency code to the base58check version bytes it
// accepts, hex encoded. Currencies without an entry cannot be validated and
// are rejected outright.
var addressPrefixes = map[string][]string{
	"BTC":   {"00", "05"},
	"TBTC":  {"6f", "c4"},
	"BCH":   {"00", "05"},
	"TBCH":  {"6f", "c4"},
	"LTC":   {"30", "05", "32"},
	"TLTC":  {"6f", "c4", "3a"},
	"DASH":  {"4c", "10"},
	"TDASH": {"8c", "13"},
	"DOGE":  {"1e", "16"},
	"TDOGE": {"71", "c4"},
}

// IsAddressValid reports whether address is a well-formed base58check
// address carrying one of the version prefixes registered for currency.
func IsAddressValid(address, currency string) bool {
	if address == "" {
		return false
	}
	prefixes, ok := addressPrefixes[currency]
	if !ok {
		return false
	}
	coin, err := base58Decode(address, 25)
	if err != nil {
		return false
	}
	return validateChecksum(coin) && validatePrefix(coin, prefixes)
}

// validateChecksum verifies the last four bytes against a double SHA-256 of
// the payload.
func validateChecksum(coin []byte) bool {
	first := sha256.Sum256(coin[:len(coin)-4])
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if coin[len(coin)-4+i] != second[i] {
			return false
		}
	}
	return true
}

func validatePrefix(coin []byte, prefixes []string) bool {
	version := hexByte(coin[0])
	for _, p := range prefixes {
		if p == version {
			return true
		}
	}
	return false
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

// base58Decode interprets s as a big-endian base58 number and returns its
// length-byte big-endian encoding.
func base58Decode(s string, length int) ([]byte, error) {
	n := new(big.Int)
	fiftyEight := big.NewInt(58)
	for _, c := range s {
		idx := strings.IndexRune(base58Alphabet, c)
		if idx < 0 {
			return nil, errInvalidBase58
		}
		n.Mul(n, fiftyEight)
		n.Add(n, big.NewInt(int64(idx)))
	}

	raw := n.Bytes()
	if len(raw) > length {
		return nil, errInvalidBase58
	}
	out := make([]byte, length)
	copy(out[length-len(raw):], raw)
	return out, nil
}
