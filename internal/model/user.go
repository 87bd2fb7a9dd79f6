package model

import (
	"strings"
	"time"
)

// Role names carried in the JWT "role" claim.
const (
	RoleStudent = "STUDENT"
	RoleDriver  = "DRIVER"
	RoleAdmin   = "ADMIN"
)

// NormalizeRole maps a free-form role string (including the Spanish names
// used by the web client) to one of the canonical roles.  Unknown or empty
// values fall back to STUDENT.
func NormalizeRole(raw string) string {
	if role, ok := ParseRole(raw); ok {
		return role
	}
	return RoleStudent
}

// ParseRole is the strict form of NormalizeRole: it reports false for
// anything that is not a known role or alias.
func ParseRole(raw string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case RoleStudent, "ESTUDIANTE":
		return RoleStudent, true
	case RoleDriver, "CONDUCTOR":
		return RoleDriver, true
	case RoleAdmin, "ADMINISTRADOR", "ADMINISTRATOR":
		return RoleAdmin, true
	}
	return "", false
}

// User represents an application user record as stored in the
// `users` table.  PasswordHash never leaves the server; the json tag
// hides it from responses.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – STUDENT, DRIVER or ADMIN.
//  FullName     – display name.
//  Phone        – contact phone (optional).
//  VehicleInfo  – vehicle description for drivers (optional).
//  HomeLat/Lon  – default pickup location (optional).
//  IsActive     – whether the account is active.
type User struct {
	ID           uint64    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	FullName     string    `db:"full_name" json:"full_name"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	VehicleInfo  *string   `db:"vehicle_info" json:"vehicle_info,omitempty"`
	HomeLat      *float64  `db:"home_lat" json:"home_lat,omitempty"`
	HomeLon      *float64  `db:"home_lon" json:"home_lon,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserPatch is a merge-patch over the editable profile fields.  Nil fields
// are left unchanged; an empty Phone or VehicleInfo clears the column.
type UserPatch struct {
	Email       *string
	FullName    *string
	Phone       *string
	VehicleInfo *string
	HomeLat     *float64
	HomeLon     *float64
	Role        *string
	IsActive    *bool
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.FullName == nil && p.Phone == nil && p.VehicleInfo == nil &&
		p.HomeLat == nil && p.HomeLon == nil && p.Role == nil && p.IsActive == nil
}

// UserFilter narrows a user listing.
type UserFilter struct {
	Role   string
	Limit  int
	Offset int
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID        uint64     `db:"id"`
	UserID    uint64     `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Identity is the authenticated caller of a request: who they are and which
// role they act under.
type Identity struct {
	ID   uint64
	Role string
}

// IsAdmin reports whether the caller has the ADMIN role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
