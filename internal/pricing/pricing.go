package pricing

import "math"

// Price computes the list and final price of one unit under cfg. It never
// fails: unknown modes price as AUTO, unknown extras and discount types
// contribute nothing. Amounts that would overflow saturate at math.MaxInt64.
func Price(r Rule, cfg Config) Quote {
	pages := int64(r.Pages)
	if pages <= 0 {
		pages = 1
	}
	base := saturate(MulInt64(pages, max(cfg.PricePerPage, 0)))

	list := base
	switch r.Mode {
	case ModeFixed:
		list = r.FixedPrice
	case ModeAutoPlusExtra:
		list = saturate(AddInt64(base, max(cfg.ExtraAmount(r.ExtraKey), 0)))
	}
	if list < 0 {
		list = 0
	}

	return Quote{ListPrice: list, FinalPrice: applyDiscount(list, r.DiscountType, r.DiscountValue)}
}

func applyDiscount(list int64, t DiscountType, value int64) int64 {
	if value < 0 {
		value = 0
	}

	final := list
	switch t {
	case DiscountPercent:
		if value > 100 {
			value = 100
		}
		// round(list * keep / 100) without forming list*keep.
		keep := 100 - value
		final = list/100*keep + (list%100*keep+50)/100
	case DiscountAmount:
		final = list - value
	}
	if final < 0 {
		final = 0
	}
	return final
}

// MulInt64 returns a*b for non-negative operands and reports false when the
// product does not fit in an int64.
func MulInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// AddInt64 returns a+b for non-negative operands and reports false when the
// sum does not fit in an int64.
func AddInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

func saturate(v int64, ok bool) int64 {
	if !ok {
		return math.MaxInt64
	}
	return v
}
