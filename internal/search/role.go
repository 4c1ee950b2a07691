// Package search builds access-controlled queries against the unified index
// and serves the search, autocomplete, and reindex operations over HTTP.
package search

import "strings"

// Role is the closed set of principal roles the query builder knows how to
// scope. Anything outside the set parses to RoleUnknown, which the builder
// turns into a filter matching nothing. Denial is the default, so a typo in
// a role name can narrow visibility but never widen it.
type Role int

const (
	RoleUnknown Role = iota
	RoleSeller
	RoleBuyer
	RoleCarrier
	RoleAdmin
)

// ParseRole maps a wire role name onto the closed enum.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seller":
		return RoleSeller
	case "buyer":
		return RoleBuyer
	case "carrier":
		return RoleCarrier
	case "admin":
		return RoleAdmin
	}
	return RoleUnknown
}

func (r Role) String() string {
	switch r {
	case RoleSeller:
		return "seller"
	case RoleBuyer:
		return "buyer"
	case RoleCarrier:
		return "carrier"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}
