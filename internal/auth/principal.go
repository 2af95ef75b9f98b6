// Package auth verifies bearer credentials and evaluates topic
// authorization policy.
package auth

// Role is the total-ordered privilege level carried by a Principal.
type Role int

const (
	RoleDeveloper Role = iota
	RoleTeamLead
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleDeveloper: "DEVELOPER",
	RoleTeamLead:  "TEAM_LEAD",
	RoleManager:   "MANAGER",
	RoleAdmin:     "ADMIN",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "DEVELOPER"
}

// Satisfies reports whether the role meets or exceeds the required level.
func (r Role) Satisfies(required Role) bool {
	return r >= required
}

// ParseRole maps a role claim to a Role, defaulting to DEVELOPER.
func ParseRole(s string) Role {
	switch s {
	case "ADMIN":
		return RoleAdmin
	case "MANAGER":
		return RoleManager
	case "TEAM_LEAD":
		return RoleTeamLead
	default:
		return RoleDeveloper
	}
}

// Principal is the authenticated identity for a request or connection.
// It is constructed once on verification and never mutated.
type Principal struct {
	ID      string
	Name    string
	Role    Role
	TeamIDs map[string]struct{}
	Active  bool
}

// Anonymous returns the principal used when no credential is presented.
func Anonymous() *Principal {
	return &Principal{Role: RoleDeveloper}
}

// IsAnonymous reports whether the principal carries no identity.
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.ID == ""
}

// InTeam reports whether the principal is a member of the team.
func (p *Principal) InTeam(teamID string) bool {
	if p == nil || teamID == "" {
		return false
	}
	_, ok := p.TeamIDs[teamID]
	return ok
}

// WithTeams returns a copy of the principal with the given team memberships.
// Enrichment happens outside the verifier, which never performs I/O.
func (p *Principal) WithTeams(teamIDs []string, active bool) *Principal {
	teams := make(map[string]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		teams[id] = struct{}{}
	}
	return &Principal{
		ID:      p.ID,
		Name:    p.Name,
		Role:    p.Role,
		TeamIDs: teams,
		Active:  active,
	}
}
