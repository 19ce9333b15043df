package model

import "fmt"

// Role is the account's tier in the distribution hierarchy.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleSuperDistributor Role = "super_distributor"
	RoleDistributor      Role = "distributor"
	RoleRetailer         Role = "retailer"
	RoleUser             Role = "user"
)

// roleRanks orders the tiers: admin outranks everything, end users rank lowest.
var roleRanks = map[Role]int{
	RoleAdmin:            5,
	RoleSuperDistributor: 4,
	RoleDistributor:      3,
	RoleRetailer:         2,
	RoleUser:             1,
}

// Rank returns the role's rank, or 0 for an unrecognized role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is one of the five known roles.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// ParseRole validates a role string from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AllRoles lists every role from highest to lowest rank.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleSuperDistributor, RoleDistributor, RoleRetailer, RoleUser}
}
