package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rank is the privilege tier of a user. Values are ordered by declaration
// and travel on the wire as their ordinal.
type Rank int

const (
	RankNormie Rank = iota
	RankModerator
	RankAdmin
)

var rankNames = [...]string{
	RankNormie:    "NORMIE",
	RankModerator: "MODERATOR",
	RankAdmin:     "ADMIN",
}

// Valid reports whether r is one of the declared ranks.
func (r Rank) Valid() bool {
	return r >= RankNormie && r <= RankAdmin
}

func (r Rank) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Rank(%d)", int(r))
	}
	return rankNames[r]
}

// ParseRank parses a rank name, ignoring case and surrounding spaces.
func ParseRank(s string) (Rank, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range rankNames {
		if n == name {
			return Rank(i), nil
		}
	}
	return 0, fmt.Errorf("unknown rank %q", s)
}

// UnmarshalJSON accepts the ordinal or the upper-case name. Ordinals
// outside the declared ranks are rejected.
func (r *Rank) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if !Rank(n).Valid() {
			return fmt.Errorf("unknown rank %d", n)
		}
		*r = Rank(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("rank must be a number or a name: %w", err)
	}
	parsed, err := ParseRank(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
