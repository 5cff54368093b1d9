package types

// Team is a sum type for the team a ticket belongs to: either a known
// tenant team identified by its code, or the unknown-team sentinel used
// when the requester's team could not be recognized. Callers must branch
// on IsKnown before using Code.
type Team struct {
	known bool
	code  string
}

// NewTeam returns a known team with the given code
func NewTeam(code string) Team {
	return Team{known: true, code: code}
}

// UnknownTeam returns the sentinel value for an unrecognized team
func UnknownTeam() Team {
	return Team{known: false}
}

// IsKnown reports whether the team is a recognized tenant team
func (t Team) IsKnown() bool {
	return t.known
}

// Code returns the team code. Empty for the unknown team.
func (t Team) Code() string {
	if !t.known {
		return ""
	}
	return t.code
}

// Equal reports whether two teams are the same variant and code
func (t Team) Equal(other Team) bool {
	return t.known == other.known && t.code == other.code
}

// Label returns a human readable representation for rendering
func (t Team) Label() string {
	if !t.known {
		return "unknown"
	}
	return t.code
}
