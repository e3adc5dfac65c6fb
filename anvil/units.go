package anvil

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// ParseEther converts a decimal ether amount such as "1" or "0.25" to wei.
func ParseEther(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid ether amount %q: %v", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid ether amount %q: negative", amount)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("invalid ether amount %q: more than %d decimals", amount, etherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders a wei amount in ether.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
