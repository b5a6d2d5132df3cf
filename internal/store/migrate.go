package store

import (
	"fmt"

	"printshop/internal/pricing"
	"printshop/internal/profile"
)

// SchemaVersion is the snapshot layout written by this build.
const SchemaVersion = 2

// migrations[i] upgrades a snapshot from version i to i+1.
var migrations = []func(*Snapshot) error{
	migrateInitial,
	migrateLegacyNames,
}

func migrate(s *Snapshot) error {
	if s.SchemaVersion > SchemaVersion {
		return fmt.Errorf("snapshot schema %d is newer than supported %d", s.SchemaVersion, SchemaVersion)
	}
	for s.SchemaVersion < SchemaVersion {
		if err := migrations[s.SchemaVersion](s); err != nil {
			return fmt.Errorf("migration %d: %w", s.SchemaVersion, err)
		}
		s.SchemaVersion++
	}
	s.ensureMaps()
	return nil
}

func (s *Snapshot) ensureMaps() {
	if s.Branches == nil {
		s.Branches = make(map[string]pricing.Config)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]Session)
	}
	if s.IDs == nil {
		s.IDs = make(map[string]int64)
	}
}

// migrateInitial fills the counters from existing records so snapshots
// written without an ids section never hand out a duplicate identifier.
func migrateInitial(s *Snapshot) error {
	s.ensureMaps()
	raise := func(kind string, id int64) {
		if id > s.IDs[kind] {
			s.IDs[kind] = id
		}
	}
	for _, u := range s.Users {
		raise(KindUsers, u.ID)
	}
	for _, c := range s.Codes {
		raise(KindCodes, c.ID)
	}
	for _, p := range s.Products {
		raise(KindProducts, p.ID)
	}
	for _, o := range s.Orders {
		raise(KindOrders, o.ID)
	}
	for _, e := range s.BlockEvents {
		raise(KindBlockEvents, e.ID)
	}
	return nil
}

// migrateLegacyNames rewrites role and enum spellings used by early data files.
func migrateLegacyNames(s *Snapshot) error {
	roles := map[profile.Role]profile.Role{
		"user":       profile.RoleCustomer,
		"admin":      profile.RoleBranchStaff,
		"supervisor": profile.RoleOwner,
	}
	for _, u := range s.Users {
		if r, ok := roles[u.Role]; ok {
			u.Role = r
		}
		if !u.Role.Valid() {
			return fmt.Errorf("user %d has unknown role %q", u.ID, u.Role)
		}
	}

	for _, p := range s.Products {
		switch p.Mode {
		case "", "auto":
			p.Mode = pricing.ModeAuto
		case "auto_plus_extra":
			p.Mode = pricing.ModeAutoPlusExtra
		case "fixed":
			p.Mode = pricing.ModeFixed
		}
		switch p.DiscountType {
		case "", "none":
			p.DiscountType = pricing.DiscountNone
		case "percent":
			p.DiscountType = pricing.DiscountPercent
		case "fixed", "amount":
			p.DiscountType = pricing.DiscountAmount
		}
	}

	for _, o := range s.Orders {
		switch o.Status {
		case "", "paid":
			o.Status = OrderPaid
		case "printed":
			o.Status = OrderPrinted
		}
	}
	return nil
}
