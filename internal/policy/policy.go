package policy

import (
	"gorm.io/gorm"

	"schematic-service/internal/models"
)

// RoleAdmin is the role claim value granting unrestricted access.
const RoleAdmin = "admin"

// Caller is the authenticated identity attached to a request. A nil *Caller
// is an anonymous request and satisfies only the public-visibility clause.
type Caller struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the caller carries the admin role.
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// CanRead decides read eligibility: public records are readable by anyone,
// private ones only by their owner or an admin.
func CanRead(caller *Caller, record *models.Schematic) bool {
	if record.IsPublic {
		return true
	}
	return CanWrite(caller, record)
}

// CanWrite decides update/delete eligibility: owner or admin only.
func CanWrite(caller *Caller, record *models.Schematic) bool {
	if caller == nil {
		return false
	}
	return caller.ID == record.OwnerID || caller.Role == RoleAdmin
}

// VisibilityScope returns a GORM scope expressing CanRead as a WHERE clause,
// so list queries are filtered in the database instead of post-filtering rows.
func VisibilityScope(caller *Caller) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if caller.IsAdmin() {
			return db
		}
		if caller == nil {
			return db.Where("is_public = ?", true)
		}
		return db.Where("is_public = ? OR owner_id = ?", true, caller.ID)
	}
}
