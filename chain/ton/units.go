package ton

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/xssnick/tonutils-go/tlb"
)

const (
	// NanoDecimals is the number of decimals of a TON amount.
	NanoDecimals = 9
	// CentsDecimals is the number of decimals a payment amount may carry.
	CentsDecimals = 2
	// JettonDecimals is the number of decimals of the USDT jetton.
	JettonDecimals = 6
	// JettonScale converts an amount in cents to jetton base units.
	JettonScale = 10000
)

var ErrInvalidAmount = errors.New("invalid amount")

// ToNano converts a decimal TON amount ("1.5") to nanotons.
func ToNano(amount string) (tlb.Coins, error) {
	if err := checkPrecision(amount, NanoDecimals); err != nil {
		return tlb.Coins{}, err
	}
	coins, err := tlb.FromTON(amount)
	if err != nil {
		return tlb.Coins{}, fmt.Errorf("%w %q: %w", ErrInvalidAmount, amount, err)
	}
	if coins.Nano().Sign() <= 0 {
		return tlb.Coins{}, fmt.Errorf("%w %q: must be positive", ErrInvalidAmount, amount)
	}

	return coins, nil
}

// ToCents converts a decimal currency amount ("2.5") to cents (250).
func ToCents(amount string) (*big.Int, error) {
	if err := checkPrecision(amount, CentsDecimals); err != nil {
		return nil, err
	}
	coins, err := tlb.FromDecimal(amount, CentsDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidAmount, amount, err)
	}
	cents := coins.Nano()
	if cents.Sign() <= 0 {
		return nil, fmt.Errorf("%w %q: must be positive", ErrInvalidAmount, amount)
	}

	return cents, nil
}

// JettonUnits scales an amount in cents to jetton base units.
func JettonUnits(cents *big.Int) (tlb.Coins, error) {
	units := new(big.Int).Mul(cents, big.NewInt(JettonScale))

	coins, err := tlb.FromNano(units, JettonDecimals)
	if err != nil {
		return tlb.Coins{}, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	return coins, nil
}

// checkPrecision rejects amounts with more fractional digits than decimals, which the
// conversion would otherwise drop.
func checkPrecision(amount string, decimals int) error {
	_, frac, ok := strings.Cut(amount, ".")
	if ok && len(frac) > decimals {
		return fmt.Errorf("%w %q: more than %d decimal places", ErrInvalidAmount, amount, decimals)
	}

	return nil
}
