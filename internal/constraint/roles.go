package constraint

import (
	"strings"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

// AdminRole lifts every access restriction
const AdminRole = "admin"

// AnonymousRole is the access role of callers without other roles
const AnonymousRole = "ANONYMOUS"

// Claim is a permission role of the form <Endpoint>_<Action>[_<condition>]
type Claim struct {
	Endpoint  string
	Action    string
	Condition string
}

// ParseClaim splits a permission role. Roles without an action part are not
// claims.
func ParseClaim(role string) (Claim, bool) {
	parts := strings.SplitN(role, "_", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Claim{}, false
	}
	c := Claim{Endpoint: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		c.Condition = parts[2]
	}
	return c, true
}

// FromRoles builds the constraints of a caller for an endpoint and action
// ("Create", "Update", "Delete", "Read"). Conditions of matching claims are
// OR-ed; a matching claim without condition removes the restriction. Roles
// that are not claims become the access-role filter.
func FromRoles(roles []string, endpoint, action string) models.CRUDConstraints {
	var cons models.CRUDConstraints
	if IsAdmin(roles) {
		return cons
	}

	var conditions []string
	unconditional := false
	for _, role := range roles {
		claim, ok := ParseClaim(role)
		if !ok {
			cons.AccessRoles = append(cons.AccessRoles, role)
			continue
		}
		if !strings.EqualFold(claim.Endpoint, endpoint) || !strings.EqualFold(claim.Action, action) {
			continue
		}
		if claim.Condition == "" {
			unconditional = true
			continue
		}
		conditions = append(conditions, claim.Condition)
	}
	if !unconditional {
		cons.Condition = strings.Join(conditions, "|")
	}
	if len(cons.AccessRoles) == 0 {
		cons.AccessRoles = []string{AnonymousRole}
	}
	return cons
}

// HasPermission reports whether roles grant action on endpoint
func HasPermission(roles []string, endpoint, action string) bool {
	if IsAdmin(roles) {
		return true
	}
	for _, role := range roles {
		claim, ok := ParseClaim(role)
		if ok && strings.EqualFold(claim.Endpoint, endpoint) && strings.EqualFold(claim.Action, action) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether roles contain the admin role
func IsAdmin(roles []string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, AdminRole) {
			return true
		}
	}
	return false
}

// MergeAccessRoles returns the union of the access roles of several
// constraints. Any unrestricted input makes the result unrestricted.
func MergeAccessRoles(cons ...models.CRUDConstraints) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, c := range cons {
		if len(c.AccessRoles) == 0 {
			return nil
		}
		for _, r := range c.AccessRoles {
			if !seen[r] {
				seen[r] = true
				merged = append(merged, r)
			}
		}
	}
	return merged
}
