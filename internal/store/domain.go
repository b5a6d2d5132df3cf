package store

import (
	"time"

	"github.com/google/uuid"

	"printshop/internal/pricing"
	"printshop/internal/profile"
)

// ID counter kinds kept in Snapshot.IDs.
const (
	KindUsers       = "users"
	KindCodes       = "codes"
	KindProducts    = "products"
	KindOrders      = "orders"
	KindBlockEvents = "block_events"
)

// CodeStatus is the lifecycle state of a voucher code.
type CodeStatus string

const (
	CodeFresh    CodeStatus = "FRESH"
	CodeSold     CodeStatus = "SOLD"
	CodeConsumed CodeStatus = "CONSUMED"
)

// OrderStatus is the print state of an order.
type OrderStatus string

const (
	OrderPaid    OrderStatus = "PAID"
	OrderPrinted OrderStatus = "PRINTED"
)

// User is a customer, branch staff member or owner.
type User struct {
	ID                int64           `json:"id"`
	Username          string          `json:"username"`
	Role              profile.Role    `json:"role"`
	Branch            string          `json:"branch"`
	Profile           profile.Profile `json:"profile"`
	CreditBalance     int64           `json:"credit_balance"`
	Blocked           bool            `json:"blocked"`
	FailedRedeemCount int             `json:"failed_redeem_count"`
	BlockedCount      int             `json:"blocked_count"`
	LastBlockedAt     *time.Time      `json:"last_blocked_at,omitempty"`
	PasswordHash      string          `json:"password_hash"`
	PasswordSalt      string          `json:"password_salt"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Subject returns the user as seen by the profile matcher.
func (u *User) Subject() profile.Subject {
	return profile.Subject{Role: u.Role, Branch: u.Branch, Profile: u.Profile}
}

// VoucherCode is a single-use prepaid credit code.
type VoucherCode struct {
	ID               int64      `json:"id"`
	Code             string     `json:"code"`
	Amount           int64      `json:"amount"`
	Status           CodeStatus `json:"status"`
	Branch           string     `json:"branch"`
	AssignedStaffID  *int64     `json:"assigned_staff_id"`
	VisibleToStaffID *int64     `json:"visible_to_staff_id"`
	CreatedAt        time.Time  `json:"created_at"`
	SoldAt           *time.Time `json:"sold_at,omitempty"`
	SoldByStaffID    *int64     `json:"sold_by_staff_id,omitempty"`
	ConsumedAt       *time.Time `json:"consumed_at,omitempty"`
	ConsumedByUserID *int64     `json:"consumed_by_user_id,omitempty"`
}

// VisibleTo reports whether staffID currently sees the code.
func (c *VoucherCode) VisibleTo(staffID int64) bool {
	return c.VisibleToStaffID != nil && *c.VisibleToStaffID == staffID
}

// Product is a printable document offered by a branch.
type Product struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Branch      string          `json:"branch"`
	Hierarchy   profile.Profile `json:"hierarchy"`
	ProfessorID *int64          `json:"professor_id,omitempty"`
	pricing.Rule
	Hidden    bool      `json:"hidden"`
	Note      string    `json:"note"`
	FileRef   string    `json:"file_ref"`
	ThumbRef  string    `json:"thumb_ref"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Target returns the product as seen by the profile matcher.
func (p *Product) Target() profile.Target {
	return profile.Target{Branch: p.Branch, Profile: p.Hierarchy}
}

// OrderItem is a purchased line with its price frozen at checkout.
type OrderItem struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// Order is a paid print job.
type Order struct {
	ID        int64       `json:"id"`
	Reference uuid.UUID   `json:"reference"`
	UserID    int64       `json:"user_id"`
	Username  string      `json:"username"`
	Branch    string      `json:"branch"`
	Items     []OrderItem `json:"items"`
	Sum       int64       `json:"sum"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	PrintedAt *time.Time  `json:"printed_at,omitempty"`
}

// BlockEvent is an append-only audit record of an account lock.
type BlockEvent struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Branch   string    `json:"branch"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Session binds an opaque login token to a user.
type Session struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the whole persisted state.
type Snapshot struct {
	SchemaVersion int                       `json:"schema_version"`
	Revision      int64                     `json:"revision"`
	Users         []*User                   `json:"users"`
	Codes         []*VoucherCode            `json:"codes"`
	Products      []*Product                `json:"products"`
	Orders        []*Order                  `json:"orders"`
	BlockEvents   []*BlockEvent             `json:"block_events"`
	Branches      map[string]pricing.Config `json:"branches"`
	Sessions      map[string]Session        `json:"sessions"`
	IDs           map[string]int64          `json:"ids"`
}

// NewSnapshot returns an empty snapshot at the current schema version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Branches:      make(map[string]pricing.Config),
		Sessions:      make(map[string]Session),
		IDs:           make(map[string]int64),
	}
}

// NextID returns the next identifier for kind. Identifiers are never reused.
func (s *Snapshot) NextID(kind string) int64 {
	if s.IDs == nil {
		s.IDs = make(map[string]int64)
	}
	s.IDs[kind]++
	return s.IDs[kind]
}

func (s *Snapshot) UserByID(id int64) *User {
	for _, u := range s.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *Snapshot) UserByUsername(username string) *User {
	for _, u := range s.Users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (s *Snapshot) CodeByID(id int64) *VoucherCode {
	for _, c := range s.Codes {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Snapshot) CodeByValue(code string) *VoucherCode {
	for _, c := range s.Codes {
		if c.Code == code {
			return c
		}
	}
	return nil
}

func (s *Snapshot) ProductByID(id int64) *Product {
	for _, p := range s.Products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// RemoveProduct deletes a product and reports whether it existed.
func (s *Snapshot) RemoveProduct(id int64) bool {
	for i, p := range s.Products {
		if p.ID == id {
			s.Products = append(s.Products[:i], s.Products[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Snapshot) OrderByID(id int64) *Order {
	for _, o := range s.Orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// BranchConfig returns the pricing configuration of branch, falling back to
// the defaults for branches that were never configured.
func (s *Snapshot) BranchConfig(branch string) pricing.Config {
	if cfg, ok := s.Branches[branch]; ok {
		return cfg
	}
	return pricing.DefaultConfig()
}

// PublicUser is a User without credentials, safe to return to clients.
type PublicUser struct {
	ID                int64           `json:"id"`
	Username          string          `json:"username"`
	Role              profile.Role    `json:"role"`
	Branch            string          `json:"branch"`
	Profile           profile.Profile `json:"profile"`
	CreditBalance     int64           `json:"credit_balance"`
	Blocked           bool            `json:"blocked"`
	FailedRedeemCount int             `json:"failed_redeem_count"`
	BlockedCount      int             `json:"blocked_count"`
	LastBlockedAt     *time.Time      `json:"last_blocked_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:                u.ID,
		Username:          u.Username,
		Role:              u.Role,
		Branch:            u.Branch,
		Profile:           u.Profile,
		CreditBalance:     u.CreditBalance,
		Blocked:           u.Blocked,
		FailedRedeemCount: u.FailedRedeemCount,
		BlockedCount:      u.BlockedCount,
		LastBlockedAt:     u.LastBlockedAt,
		CreatedAt:         u.CreatedAt,
	}
}
