// internal/catalog/domain.go
package catalog

import (
	"net/url"
	"strconv"
	"time"

	"printshop/internal/pricing"
	"printshop/internal/profile"
	"printshop/internal/store"
)

// MaxPageSize caps how many listings one request returns.
const MaxPageSize = 50

// listingTTL bounds how long a cached listing may survive. The is_new badge
// depends on the clock, so entries must not live long.
const listingTTL = 30 * time.Second

// ProductInput describes a new product. Pages come from the upload
// collaborator that stored the file.
type ProductInput struct {
	Title         string               `json:"title" validate:"required,max=200"`
	Branch        string               `json:"branch" validate:"omitempty,branch"`
	Hierarchy     profile.Profile      `json:"hierarchy"`
	ProfessorID   *int64               `json:"professor_id"`
	Pages         int                  `json:"pages" validate:"gt=0,max=100000"`
	Mode          pricing.Mode         `json:"mode" validate:"omitempty,pricing_mode"`
	FixedPrice    int64                `json:"fixed_price" validate:"min=0,max=10000000"`
	ExtraKey      string               `json:"extra_key" validate:"omitempty,oneof=EXTRA1 EXTRA2 EXTRA3 EXTRA4"`
	DiscountType  pricing.DiscountType `json:"discount_type" validate:"omitempty,discount_type"`
	DiscountValue int64                `json:"discount_value" validate:"min=0,max=10000000"`
	Hidden        bool                 `json:"hidden"`
	Note          string               `json:"note" validate:"max=500"`
	FileRef       string               `json:"file_ref" validate:"max=300"`
	ThumbRef      string               `json:"thumb_ref" validate:"max=300"`
}

// ProductPatch changes the non-nil fields of a product.
type ProductPatch struct {
	Title         *string               `json:"title" validate:"omitempty,min=1,max=200"`
	Hierarchy     *profile.Profile      `json:"hierarchy"`
	ProfessorID   *int64                `json:"professor_id"`
	Pages         *int                  `json:"pages" validate:"omitempty,gt=0,max=100000"`
	Mode          *pricing.Mode         `json:"mode" validate:"omitempty,pricing_mode"`
	FixedPrice    *int64                `json:"fixed_price" validate:"omitempty,min=0,max=10000000"`
	ExtraKey      *string               `json:"extra_key" validate:"omitempty,oneof=EXTRA1 EXTRA2 EXTRA3 EXTRA4"`
	DiscountType  *pricing.DiscountType `json:"discount_type" validate:"omitempty,discount_type"`
	DiscountValue *int64                `json:"discount_value" validate:"omitempty,min=0,max=10000000"`
	Hidden        *bool                 `json:"hidden"`
	Note          *string               `json:"note" validate:"omitempty,max=500"`
	FileRef       *string               `json:"file_ref" validate:"omitempty,max=300"`
	ThumbRef      *string               `json:"thumb_ref" validate:"omitempty,max=300"`
}

func (p ProductPatch) apply(dst *store.Product) {
	if p.Title != nil {
		dst.Title = *p.Title
	}
	if p.Hierarchy != nil {
		dst.Hierarchy = *p.Hierarchy
	}
	if p.ProfessorID != nil {
		dst.ProfessorID = p.ProfessorID
	}
	if p.Pages != nil {
		dst.Pages = *p.Pages
	}
	if p.Mode != nil {
		dst.Mode = *p.Mode
	}
	if p.FixedPrice != nil {
		dst.FixedPrice = *p.FixedPrice
	}
	if p.ExtraKey != nil {
		dst.ExtraKey = *p.ExtraKey
	}
	if p.DiscountType != nil {
		dst.DiscountType = *p.DiscountType
	}
	if p.DiscountValue != nil {
		dst.DiscountValue = *p.DiscountValue
	}
	if p.Hidden != nil {
		dst.Hidden = *p.Hidden
	}
	if p.Note != nil {
		dst.Note = *p.Note
	}
	if p.FileRef != nil {
		dst.FileRef = *p.FileRef
	}
	if p.ThumbRef != nil {
		dst.ThumbRef = *p.ThumbRef
	}
}

// Query narrows a customer listing. Hierarchy filters keep products that
// leave the level open.
type Query struct {
	Branch      string
	Hierarchy   profile.Profile
	ProfessorID *int64
	Search      string
	Limit       int
	Offset      int
}

func (q Query) cacheKey() string {
	v := url.Values{}
	set := func(name string, id *int64) {
		if id != nil {
			v.Set(name, strconv.FormatInt(*id, 10))
		}
	}
	set("faculty_id", q.Hierarchy.FacultyID)
	set("track_id", q.Hierarchy.TrackID)
	set("year_id", q.Hierarchy.YearID)
	set("module_id", q.Hierarchy.ModuleID)
	set("group_id", q.Hierarchy.GroupID)
	set("professor_id", q.ProfessorID)
	if q.Branch != "" {
		v.Set("branch", q.Branch)
	}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	return v.Encode()
}

// Listing is a product with its current price under the branch settings.
type Listing struct {
	store.Product
	pricing.Quote
	Currency string `json:"currency"`
	IsNew    bool   `json:"is_new"`
}

func filterLevel(want, have *int64) bool {
	if want == nil || have == nil {
		return true
	}
	return *want == *have
}

func (q Query) matches(p *store.Product) bool {
	h := p.Hierarchy
	if !filterLevel(q.Hierarchy.FacultyID, h.FacultyID) ||
		!filterLevel(q.Hierarchy.TrackID, h.TrackID) ||
		!filterLevel(q.Hierarchy.YearID, h.YearID) ||
		!filterLevel(q.Hierarchy.ModuleID, h.ModuleID) ||
		!filterLevel(q.Hierarchy.GroupID, h.GroupID) {
		return false
	}
	if q.ProfessorID != nil && (p.ProfessorID == nil || *p.ProfessorID != *q.ProfessorID) {
		return false
	}
	return true
}
