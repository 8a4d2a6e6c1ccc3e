package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles a user can hold, either globally (admin
// roles) or inside a tenant (membership roles).
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RolePlatformAdmin Role = "platform_admin"
	RoleAdmin         Role = "admin"
	RoleTenantAdmin   Role = "tenant_admin"
	RoleTenantOwner   Role = "tenant_owner"
	RoleTenantUser    Role = "tenant_user"
	RoleFarmer        Role = "farmer"
	RoleDealer        Role = "dealer"
)

// adminHierarchy lists global admin roles from most to least privileged.
// The index is the rank: lower rank means more privilege.
var adminHierarchy = []Role{RoleSuperAdmin, RolePlatformAdmin, RoleAdmin}

// membershipRoles are the roles a User-Tenant relationship may carry.
var membershipRoles = []Role{
	RoleSuperAdmin,
	RolePlatformAdmin,
	RoleTenantAdmin,
	RoleTenantOwner,
	RoleTenantUser,
	RoleFarmer,
	RoleDealer,
}

// ParseRole validates and normalizes a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is part of the closed role set.
func (r Role) Valid() bool {
	if r == RoleAdmin {
		return true
	}
	for _, candidate := range membershipRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// AdminRank returns the position of r in the global admin hierarchy.
func (r Role) AdminRank() (int, bool) {
	for i, candidate := range adminHierarchy {
		if candidate == r {
			return i, true
		}
	}
	return 0, false
}

// IsAdmin reports whether r is a global admin role.
func (r Role) IsAdmin() bool {
	_, ok := r.AdminRank()
	return ok
}

// Outranks reports whether r is at or above required in the admin hierarchy.
// Both roles must be admin roles; anything else returns false.
func (r Role) Outranks(required Role) bool {
	have, ok := r.AdminRank()
	if !ok {
		return false
	}
	want, ok := required.AdminRank()
	if !ok {
		return false
	}
	return have <= want
}

// MembershipRole reports whether r may be stored on a User-Tenant relationship.
func (r Role) MembershipRole() bool {
	for _, candidate := range membershipRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
