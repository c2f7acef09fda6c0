package domain

import (
	"encoding/json"
	"math"
)

// StockBound is the purchasable ceiling for a product. It is either a finite,
// non-negative limit or unbounded. The zero value is Finite(0), which blocks
// the product from entering a cart.
type StockBound struct {
	limit     int
	unbounded bool
}

// Finite returns a bound of n units. Negative values are treated as 0.
func Finite(n int) StockBound {
	if n < 0 {
		n = 0
	}
	return StockBound{limit: n}
}

// Unbounded returns a bound with no ceiling.
func Unbounded() StockBound {
	return StockBound{unbounded: true}
}

// StockFromFloat coerces a raw catalog number into a finite bound.
// NaN, infinities and negative values resolve to 0; fractions are truncated.
func StockFromFloat(f float64) StockBound {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return Finite(0)
	}
	if f > math.MaxInt32 {
		return Finite(math.MaxInt32)
	}
	return Finite(int(f))
}

// IsUnbounded reports whether the bound has no ceiling.
func (b StockBound) IsUnbounded() bool { return b.unbounded }

// Limit returns the finite ceiling. It is 0 for unbounded stock.
func (b StockBound) Limit() int {
	if b.unbounded {
		return 0
	}
	return b.limit
}

// Available reports whether at least one unit can be put in a cart.
func (b StockBound) Available() bool {
	return b.unbounded || b.limit > 0
}

// Allows reports whether a quantity of q fits under the bound.
func (b StockBound) Allows(q int) bool {
	if q < 1 {
		return false
	}
	return b.unbounded || q <= b.limit
}

// Clamp forces q into [1, limit], or [1, +inf) for unbounded stock.
func (b StockBound) Clamp(q int) int {
	if q < 1 {
		q = 1
	}
	if !b.unbounded && q > b.limit {
		q = b.limit
	}
	return q
}

type stockJSON struct {
	Quantity  *int `json:"quantity"`
	Unlimited bool `json:"unlimited"`
}

// MarshalJSON renders the bound for API responses as
// {"quantity": n, "unlimited": false} or {"quantity": null, "unlimited": true}.
func (b StockBound) MarshalJSON() ([]byte, error) {
	if b.unbounded {
		return json.Marshal(stockJSON{Unlimited: true})
	}
	n := b.limit
	return json.Marshal(stockJSON{Quantity: &n})
}

// UnmarshalJSON is the inverse of MarshalJSON. A missing quantity without the
// unlimited flag yields Finite(0).
func (b *StockBound) UnmarshalJSON(data []byte) error {
	var v stockJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch {
	case v.Unlimited:
		*b = Unbounded()
	case v.Quantity != nil:
		*b = Finite(*v.Quantity)
	default:
		*b = Finite(0)
	}
	return nil
}
