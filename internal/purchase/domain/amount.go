package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatMajorUnits converts a smallest-unit amount to a major-unit display string.
// At least one fractional digit is always kept: "5000000" -> "5.0".
func FormatMajorUnits(smallest string) (string, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(smallest), 10)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", smallest)
	}

	sign := ""
	if value.Sign() < 0 {
		sign = "-"
		value.Neg(value)
	}

	whole, frac := new(big.Int).QuoRem(value, big.NewInt(LovelacePerADA), new(big.Int))
	fraction := strings.TrimRight(fmt.Sprintf("%06d", frac.Int64()), "0")
	if fraction == "" {
		fraction = "0"
	}

	return sign + whole.String() + "." + fraction, nil
}
