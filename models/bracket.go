package models

import (
	"fmt"
	"time"
)

// BracketKind tells the advancement resolver how matches of a bracket feed each other.
type BracketKind string

const (
	BracketMain       BracketKind = "MAIN"
	BracketWinners    BracketKind = "WINNERS"
	BracketLosers     BracketKind = "LOSERS"
	BracketRoundRobin BracketKind = "ROUND_ROBIN"
	BracketSwiss      BracketKind = "SWISS"
)

func ParseBracketKind(s string) (BracketKind, error) {
	switch kind := BracketKind(s); kind {
	case BracketMain, BracketWinners, BracketLosers, BracketRoundRobin, BracketSwiss:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown bracket kind %q", s)
	}
}

// Advances reports whether winners of this bracket move on to a later round.
func (k BracketKind) Advances() bool {
	switch k {
	case BracketMain, BracketWinners, BracketLosers:
		return true
	default:
		return false
	}
}

type Bracket struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	Name         string      `json:"name" db:"name"`
	Kind         BracketKind `json:"kind" db:"kind"`
	Rounds       int         `json:"rounds" db:"rounds"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`

	Matches []Match `json:"matches,omitempty" db:"-"`
}
