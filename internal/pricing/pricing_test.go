package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPrice(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		rule Rule
		want Quote
	}{
		{
			name: "auto with percent discount",
			rule: Rule{Pages: 20, Mode: ModeAuto, DiscountType: DiscountPercent, DiscountValue: 10},
			want: Quote{ListPrice: 200, FinalPrice: 180},
		},
		{
			name: "auto without discount",
			rule: Rule{Pages: 7, Mode: ModeAuto, DiscountType: DiscountNone},
			want: Quote{ListPrice: 70, FinalPrice: 70},
		},
		{
			name: "fixed ignores pages",
			rule: Rule{Pages: 300, Mode: ModeFixed, FixedPrice: 450},
			want: Quote{ListPrice: 450, FinalPrice: 450},
		},
		{
			name: "auto plus extra",
			rule: Rule{Pages: 10, Mode: ModeAutoPlusExtra, ExtraKey: "EXTRA3"},
			want: Quote{ListPrice: 180, FinalPrice: 180},
		},
		{
			name: "unknown extra contributes nothing",
			rule: Rule{Pages: 10, Mode: ModeAutoPlusExtra, ExtraKey: "EXTRA9"},
			want: Quote{ListPrice: 100, FinalPrice: 100},
		},
		{
			name: "zero pages priced as one",
			rule: Rule{Pages: 0, Mode: ModeAuto},
			want: Quote{ListPrice: 10, FinalPrice: 10},
		},
		{
			name: "negative pages priced as one",
			rule: Rule{Pages: -4, Mode: ModeAuto},
			want: Quote{ListPrice: 10, FinalPrice: 10},
		},
		{
			name: "amount discount floors at zero",
			rule: Rule{Pages: 3, Mode: ModeAuto, DiscountType: DiscountAmount, DiscountValue: 500},
			want: Quote{ListPrice: 30, FinalPrice: 0},
		},
		{
			name: "negative discount never raises price",
			rule: Rule{Pages: 5, Mode: ModeAuto, DiscountType: DiscountAmount, DiscountValue: -40},
			want: Quote{ListPrice: 50, FinalPrice: 50},
		},
		{
			name: "percent rounds half up",
			rule: Rule{Pages: 1, Mode: ModeFixed, FixedPrice: 15, DiscountType: DiscountPercent, DiscountValue: 50},
			want: Quote{ListPrice: 15, FinalPrice: 8},
		},
		{
			name: "percent above hundred is free",
			rule: Rule{Pages: 4, Mode: ModeAuto, DiscountType: DiscountPercent, DiscountValue: 150},
			want: Quote{ListPrice: 40, FinalPrice: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Price(tt.rule, cfg))
		})
	}
}

func TestPriceUsesBranchPricePerPage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PricePerPage = 12

	q := Price(Rule{Pages: 10, Mode: ModeAuto}, cfg)
	assert.Equal(t, int64(120), q.ListPrice)
}

func TestPriceSaturatesNearLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PricePerPage = math.MaxInt64 / 2

	q := Price(Rule{Pages: 3, Mode: ModeAuto}, cfg)
	assert.Equal(t, Quote{ListPrice: math.MaxInt64, FinalPrice: math.MaxInt64}, q)

	q = Price(Rule{Pages: 2, Mode: ModeAutoPlusExtra, ExtraKey: "EXTRA4"}, cfg)
	assert.Equal(t, int64(math.MaxInt64), q.ListPrice)

	q = Price(Rule{Mode: ModeFixed, FixedPrice: math.MaxInt64, DiscountType: DiscountPercent, DiscountValue: 10}, cfg)
	assert.Equal(t, int64(8301034833169198226), q.FinalPrice)

	q = Price(Rule{Mode: ModeFixed, FixedPrice: math.MaxInt64, DiscountType: DiscountPercent, DiscountValue: 0}, cfg)
	assert.Equal(t, int64(math.MaxInt64), q.FinalPrice)

	q = Price(Rule{Mode: ModeFixed, FixedPrice: math.MaxInt64, DiscountType: DiscountAmount, DiscountValue: math.MaxInt64}, cfg)
	assert.Zero(t, q.FinalPrice)
}

func TestCheckedArithmetic(t *testing.T) {
	v, ok := MulInt64(1<<62, 2)
	assert.False(t, ok)
	v, ok = MulInt64(1<<31, 1<<31)
	assert.True(t, ok)
	assert.Equal(t, int64(1<<62), v)
	_, ok = MulInt64(-1, 5)
	assert.False(t, ok)

	_, ok = AddInt64(math.MaxInt64, 1)
	assert.False(t, ok)
	v, ok = AddInt64(math.MaxInt64-1, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), v)
}

func TestPriceProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		cfg.PricePerPage = rapid.Int64Range(0, math.MaxInt64).Draw(t, "pricePerPage")
		cfg.Extras[0].Amount = rapid.Int64Range(0, math.MaxInt64).Draw(t, "extra1")

		r := Rule{
			Pages:         rapid.IntRange(-5, math.MaxInt32).Draw(t, "pages"),
			Mode:          rapid.SampledFrom([]Mode{ModeAuto, ModeAutoPlusExtra, ModeFixed}).Draw(t, "mode"),
			FixedPrice:    rapid.Int64Range(0, math.MaxInt64).Draw(t, "fixedPrice"),
			ExtraKey:      rapid.SampledFrom([]string{"", "EXTRA1", "EXTRA2", "EXTRA3", "EXTRA4", "BOGUS"}).Draw(t, "extraKey"),
			DiscountType:  rapid.SampledFrom([]DiscountType{DiscountNone, DiscountPercent, DiscountAmount}).Draw(t, "discountType"),
			DiscountValue: rapid.Int64Range(-100, math.MaxInt64).Draw(t, "discountValue"),
		}

		q := Price(r, cfg)

		if q.FinalPrice < 0 {
			t.Fatalf("final price %d is negative", q.FinalPrice)
		}
		if q.FinalPrice > q.ListPrice {
			t.Fatalf("final price %d exceeds list price %d", q.FinalPrice, q.ListPrice)
		}
		if r.DiscountType == DiscountNone && q.FinalPrice != q.ListPrice {
			t.Fatalf("no discount but final %d != list %d", q.FinalPrice, q.ListPrice)
		}
		if again := Price(r, cfg); again != q {
			t.Fatalf("pricing is not deterministic: %v vs %v", q, again)
		}
	})
}
