package identity

import "strings"

// System identities are platform bootstrap accounts that have no backing row
// in the credential store. They are recognised during token verification by a
// reserved subject value; ordinary accounts always use UUID subjects, so the
// "system:" prefix can never collide with a provisioned user.
//
// Embedding static credentials for these accounts is deliberately NOT
// supported here; bootstrap passwords are provisioned through seeding.
const (
	SystemRootSubject        = "system:root"
	SystemLegacyOwnerSubject = "system:legacy-owner"
)

var systemIdentities = map[string]Identity{
	SystemRootSubject: {
		Email: "root@mobileshop.local",
		Name:  "Platform Root",
		Role:  RoleOwner,
	},
	SystemLegacyOwnerSubject: {
		Email: "owner@mobileshop.local",
		Name:  "Legacy Owner",
		Role:  RoleOwner,
	},
}

// SystemBySubject resolves a reserved subject to its fixed identity. The
// returned identity has a zero UserID and nil TenantID.
func SystemBySubject(sub string) (Identity, bool) {
	id, ok := systemIdentities[sub]
	return id, ok
}

// IsReservedSubject reports whether sub belongs to the reserved namespace.
// Registration and seeding must reject such subjects for ordinary accounts.
func IsReservedSubject(sub string) bool {
	return strings.HasPrefix(sub, "system:")
}
