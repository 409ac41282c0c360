package domain

// Roles.
const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

// User is the caller profile. An admin with a nil PharmacyID is a super-admin;
// any other user without a pharmacy has not been assigned yet.
type User struct {
	ID           int64  `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	FullName     string `json:"full_name" db:"full_name"`
	PasswordHash string `json:"-" db:"password_hash"`
	Role         string `json:"role" db:"role"`
	PharmacyID   *int64 `json:"pharmacy_id" db:"pharmacy_id"`
	CreatedAt    string `json:"created_at,omitempty" db:"created_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Unscoped reports whether u may reach every pharmacy's data.
func (u User) Unscoped() bool { return u.IsAdmin() && u.PharmacyID == nil }

// Unassigned reports whether u is a non-admin that no pharmacy has claimed.
func (u User) Unassigned() bool { return !u.IsAdmin() && u.PharmacyID == nil }
