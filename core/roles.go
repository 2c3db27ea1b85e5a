package core

import "strings"

// DefaultRole is assigned to accounts whose role column is NULL.
const DefaultRole = "CUSTOMER"

// Role is an entry of the fixed role catalog.
type Role struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var roleCatalog = []Role{
	{Code: "ADMIN", Name: "Administrator"},
	{Code: "SHOPKEEPER", Name: "Shopkeeper"},
	{Code: "CUSTOMER", Name: "Customer"},
}

// Roles returns a copy of the role catalog.
func Roles() []Role {
	out := make([]Role, len(roleCatalog))
	copy(out, roleCatalog)
	return out
}

// RoleCodes returns the catalog codes in catalog order.
func RoleCodes() []string {
	codes := make([]string, 0, len(roleCatalog))
	for _, r := range roleCatalog {
		codes = append(codes, r.Code)
	}
	return codes
}

// RoleByCode looks up a catalog entry; code is matched after trim + upper-case.
func RoleByCode(code string) (Role, bool) {
	code = normalizeRole(code)
	for _, r := range roleCatalog {
		if r.Code == code {
			return r, true
		}
	}
	return Role{}, false
}

// RoleSet is a read-only set of accepted role codes.
type RoleSet struct {
	codes map[string]struct{}
}

// NewRoleSet builds a RoleSet from codes; codes are normalized the same way as
// user input so lookups are symmetric.
func NewRoleSet(codes []string) RoleSet {
	m := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = normalizeRole(c); c != "" {
			m[c] = struct{}{}
		}
	}
	return RoleSet{codes: m}
}

// Contains reports whether code (already normalized) is an accepted role.
func (s RoleSet) Contains(code string) bool {
	_, ok := s.codes[code]
	return ok
}

func normalizeRole(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
