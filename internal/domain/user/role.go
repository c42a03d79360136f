package user

import "strings"

type Role string

const (
	RoleTechnicalDirector Role = "technical_director" // Reviews and approves change requests
	RoleProjectManager    Role = "project_manager"    // Owns project budgets and approvals
	RoleSiteEngineer      Role = "site_engineer"      // Raises purchase and material requests
	RoleBuyer             Role = "buyer"              // Executes approved purchases
	RoleProductionManager Role = "production_manager" // Oversees production schedules
	RoleEstimator         Role = "estimator"          // Prepares cost estimates
	RoleAdmin             Role = "admin"              // System administration
	RoleUnknown           Role = ""                   // Unrecognized / no role
)

// Broadcast sentinels. A notification targeted at one of these roles is
// delivered to every session regardless of its actual role.
const (
	TargetAll    = "all"
	TargetClient = "client"
)

// RoleAliases maps each canonical role to every textual variant the backend
// has historically persisted for it: display names, shortened codes, and
// snake/camel-case keys. Comparison happens on the folded form (lower-case,
// separators stripped), so entries here only need to cover variants that
// differ beyond casing and separators.
var RoleAliases = map[Role][]string{
	RoleTechnicalDirector: {"technical director", "technicaldirector", "td", "director"},
	RoleProjectManager:    {"project manager", "projectmanager", "pm"},
	RoleSiteEngineer:      {"site engineer", "siteengineer", "engineer", "se"},
	RoleBuyer:             {"buyer", "purchasing", "procurement", "procurement officer"},
	RoleProductionManager: {"production manager", "productionmanager", "production"},
	RoleEstimator:         {"estimator", "estimation"},
	RoleAdmin:             {"admin", "administrator", "superadmin", "super admin"},
}

var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]Role {
	index := make(map[string]Role)
	for role, aliases := range RoleAliases {
		index[foldRole(string(role))] = role
		for _, alias := range aliases {
			index[foldRole(alias)] = role
		}
	}
	return index
}

// foldRole lower-cases a role string and strips the separators that vary
// across historical spellings (spaces, underscores, hyphens).
func foldRole(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// ResolveRole maps any known spelling of a role to its canonical value.
// Unrecognized spellings resolve to RoleUnknown.
func ResolveRole(s string) Role {
	if role, ok := aliasIndex[foldRole(s)]; ok {
		return role
	}
	return RoleUnknown
}

// IsBroadcastTarget reports whether the target role is one of the sentinel
// values that match every session.
func IsBroadcastTarget(target string) bool {
	folded := foldRole(target)
	return folded == TargetAll || folded == TargetClient
}

// RolesMatch reports whether two role strings denote the same logical role,
// treating historical aliases as equivalent. Two unrecognized spellings only
// match when their folded forms are identical and non-empty; an unrecognized
// role never matches a recognized one.
func RolesMatch(a, b string) bool {
	roleA, roleB := ResolveRole(a), ResolveRole(b)
	if roleA != RoleUnknown || roleB != RoleUnknown {
		return roleA == roleB && roleA != RoleUnknown
	}
	foldedA := foldRole(a)
	return foldedA != "" && foldedA == foldRole(b)
}
