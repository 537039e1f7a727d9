package identity

import "github.com/google/uuid"

// Roles recognised across the platform. Tenant-scoped accounts carry admin or
// staff; platform-level accounts (TenantID == nil) carry owner or admin.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Identity is the canonical tuple produced by credential resolution. A nil
// TenantID denotes a platform-level (operator) identity. Immutable once
// loaded for the duration of a request.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	Name     string
	Role     string
	TenantID *uuid.UUID
}

// Platform reports whether the identity is platform-scoped.
func (i Identity) Platform() bool {
	return i.TenantID == nil
}
