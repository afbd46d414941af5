package ethereum

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

const etherDecimals = 18

// ParseEther converts a non-negative decimal ether amount such as "0.1" into
// wei. At most 18 fractional digits are accepted; exponents, signs and
// separators are rejected.
func ParseEther(raw string) (*big.Int, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return nil, amountParse(raw, "empty amount")
	}

	whole, frac, hasDot := strings.Cut(input, ".")
	if hasDot && whole == "" && frac == "" {
		return nil, amountParse(raw, "no digits")
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, amountParse(raw, "expected decimal digits")
	}
	if len(frac) > etherDecimals {
		return nil, amountParse(raw, "more than 18 decimal places")
	}

	wei := new(big.Int)
	if whole != "" {
		wei.SetString(whole, 10)
	}
	wei.Mul(wei, big.NewInt(params.Ether))

	if frac != "" {
		padded := frac + strings.Repeat("0", etherDecimals-len(frac))
		fracWei, _ := new(big.Int).SetString(padded, 10)
		wei.Add(wei, fracWei)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(wei)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, big.NewInt(params.Ether), new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fracText := frac.String()
	fracText = strings.Repeat("0", etherDecimals-len(fracText)) + fracText
	return sign + whole.String() + "." + strings.TrimRight(fracText, "0")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
