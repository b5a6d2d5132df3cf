package pricing

// Mode selects how a product's list price is derived.
type Mode string

const (
	ModeAuto          Mode = "AUTO"
	ModeAutoPlusExtra Mode = "AUTO_PLUS_EXTRA"
	ModeFixed         Mode = "FIXED"
)

// DiscountType selects how a discount is applied to the list price.
type DiscountType string

const (
	DiscountNone    DiscountType = "NONE"
	DiscountPercent DiscountType = "PERCENT"
	DiscountAmount  DiscountType = "AMOUNT"
)

// Extra is a named surcharge configured per branch.
type Extra struct {
	Key    string `json:"key" validate:"required,oneof=EXTRA1 EXTRA2 EXTRA3 EXTRA4"`
	Label  string `json:"label" validate:"max=60"`
	Amount int64  `json:"amount" validate:"min=0,max=10000000"`
}

// Config is the pricing configuration of one branch.
type Config struct {
	Currency           string  `json:"currency" validate:"required,len=3"`
	PricePerPage       int64   `json:"price_per_page" validate:"min=0,max=10000000"`
	Extras             []Extra `json:"extras" validate:"max=4,dive"`
	NewBadgeWindowDays int     `json:"new_badge_window_days" validate:"min=0,max=365"`
	LatestN            int     `json:"latest_n" validate:"min=1,max=50"`
}

// Rule holds the pricing fields of a product.
type Rule struct {
	Pages         int          `json:"pages"`
	Mode          Mode         `json:"mode"`
	FixedPrice    int64        `json:"fixed_price"`
	ExtraKey      string       `json:"extra_key"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
}

// Quote is the outcome of pricing one unit of a product.
type Quote struct {
	ListPrice  int64 `json:"list_price"`
	FinalPrice int64 `json:"final_price"`
}

// DefaultConfig returns the configuration a new branch starts with.
func DefaultConfig() Config {
	return Config{
		Currency:     "DZD",
		PricePerPage: 10,
		Extras: []Extra{
			{Key: "EXTRA1", Label: "Extra 1", Amount: 30},
			{Key: "EXTRA2", Label: "Extra 2", Amount: 50},
			{Key: "EXTRA3", Label: "Extra 3", Amount: 80},
			{Key: "EXTRA4", Label: "Extra 4", Amount: 150},
		},
		NewBadgeWindowDays: 3,
		LatestN:            20,
	}
}

// ExtraAmount returns the configured amount for key, or 0 when unknown.
func (c Config) ExtraAmount(key string) int64 {
	for _, e := range c.Extras {
		if e.Key == key {
			return e.Amount
		}
	}
	return 0
}

// ValidMode reports whether m is a known pricing mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeAuto, ModeAutoPlusExtra, ModeFixed:
		return true
	}
	return false
}

// ValidDiscount reports whether d is a known discount type.
func ValidDiscount(d DiscountType) bool {
	switch d {
	case DiscountNone, DiscountPercent, DiscountAmount:
		return true
	}
	return false
}
