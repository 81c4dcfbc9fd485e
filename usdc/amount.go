package usdc

import (
	"errors"
	"fmt"
	"strconv"
)

// Amount is a quantity of USDC in base units (micro-USDC). Prices and payment
// values travel the wire as decimal strings so large amounts never pass through
// a float.
type Amount int64

var ErrInvalidAmount = errors.New("usdc: invalid amount")

// Parse converts a base-unit integer string into an Amount.
func Parse(s string) (Amount, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative %q", ErrInvalidAmount, s)
	}
	return Amount(v), nil
}

func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// MarshalJSON emits the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		// Tolerate bare numbers from older writers.
		s = string(data)
	}
	v, perr := Parse(s)
	if perr != nil {
		return perr
	}
	*a = v
	return nil
}
