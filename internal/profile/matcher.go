package profile

// Role is the authorization role of a user.
type Role string

const (
	RoleCustomer    Role = "customer"
	RoleBranchStaff Role = "branch_staff"
	RoleOwner       Role = "owner"
)

// Profile is a position in the curriculum hierarchy. A nil level means
// "not selected" and matches anything.
type Profile struct {
	FacultyID *int64 `json:"faculty_id"`
	TrackID   *int64 `json:"track_id"`
	YearID    *int64 `json:"year_id"`
	ModuleID  *int64 `json:"module_id"`
	GroupID   *int64 `json:"group_id"`
}

// Subject is the viewer side of a visibility check.
type Subject struct {
	Role    Role
	Branch  string
	Profile Profile
}

// Target is the product side of a visibility check.
type Target struct {
	Branch  string
	Profile Profile
}

// IsVisible reports whether a product may be listed to or bought by the subject.
// The hidden flag is not considered here.
func IsVisible(t Target, s Subject) bool {
	if s.Role == RoleBranchStaff || s.Role == RoleOwner {
		return true
	}
	if s.Role != RoleCustomer {
		return false
	}
	if t.Branch != s.Branch {
		return false
	}
	return levelMatches(t.Profile.FacultyID, s.Profile.FacultyID) &&
		levelMatches(t.Profile.TrackID, s.Profile.TrackID) &&
		levelMatches(t.Profile.YearID, s.Profile.YearID) &&
		levelMatches(t.Profile.ModuleID, s.Profile.ModuleID) &&
		levelMatches(t.Profile.GroupID, s.Profile.GroupID)
}

func levelMatches(a, b *int64) bool {
	if a == nil || b == nil {
		return true
	}
	return *a == *b
}

// IsStaff reports whether r is a management role.
func (r Role) IsStaff() bool {
	return r == RoleBranchStaff || r == RoleOwner
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r.IsStaff()
}
